// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package analysis

import (
	"fmt"
)

// Role is a stage of the BIP 174 signing workflow.  Roles are totally ordered
// by their rank, lower ranks coming earlier in the workflow.
type Role uint8

// These constants define the workflow roles.  The values are the declared
// ranks and must stay in workflow order.
const (
	// RoleCreator builds the unsigned transaction.
	RoleCreator Role = 0

	// RoleUpdater adds UTXOs, scripts and key derivations.
	RoleUpdater Role = 1

	// RoleSigner adds partial signatures.
	RoleSigner Role = 2

	// RoleFinalizer assembles the final unlocking data.
	RoleFinalizer Role = 3

	// RoleExtractor pulls the network transaction out of a packet whose
	// inputs are all finalized.
	RoleExtractor Role = 4
)

// Map of roles back to their constant names for pretty printing.
var roleStrings = map[Role]string{
	RoleCreator:   "creator",
	RoleUpdater:   "updater",
	RoleSigner:    "signer",
	RoleFinalizer: "finalizer",
	RoleExtractor: "extractor",
}

// String returns the lowercase name of the role.
func (r Role) String() string {
	if s, ok := roleStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Role (%d)", uint8(r))
}

// Rank returns the position of the role in the workflow.
func (r Role) Rank() int {
	return int(r)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if _, ok := roleStrings[r]; !ok {
		return nil, fmt.Errorf("unknown role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// MinRole returns whichever of a and b has the lower rank.
func MinRole(a, b Role) Role {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}
