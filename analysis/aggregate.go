// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package analysis

// aggregateRole returns the role that needs to handle a packet whose inputs
// were analyzed as passed.  It is the lowest ranked next role of any input,
// which is RoleExtractor once every input is final.  A packet without inputs
// is still with its creator.
func aggregateRole(inputs []InputAnalysis) Role {
	if len(inputs) == 0 {
		return RoleCreator
	}

	next := RoleExtractor
	for i := range inputs {
		next = MinRole(next, inputs[i].Next)
	}
	return next
}
