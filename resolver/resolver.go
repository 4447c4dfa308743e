// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package resolver

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

var (
	// ErrUnrecognized is returned when a script does not match any of the
	// spend templates the resolver knows about.  It is not a failure of
	// the script itself, the resolver simply declines to guess.
	ErrUnrecognized = errors.New("unrecognized script")

	// ErrMalformedScript is returned when a script cannot be parsed into
	// opcodes at all.
	ErrMalformedScript = errors.New("malformed script")

	// ErrUnspendable is returned when a script can provably never be
	// satisfied, such as a null data output.
	ErrUnspendable = errors.New("unspendable script")
)

const (
	// scriptHashLen is the length of a HASH160 script or key hash.
	scriptHashLen = 20

	// witnessScriptHashLen is the length of a version 0 witness script
	// program.
	witnessScriptHashLen = 32
)

// KeyID identifies a public key by the HASH160 of its serialization.  Scripts
// that commit to a key hash rather than the key itself can only name their
// signer this way.
type KeyID [scriptHashLen]byte

// NewKeyID returns the KeyID of the passed serialized public key.
func NewKeyID(pubKey []byte) KeyID {
	var id KeyID
	copy(id[:], btcutil.Hash160(pubKey))
	return id
}

// String returns the KeyID as a hex string.
func (k KeyID) String() string {
	return hex.EncodeToString(k[:])
}

// Signer is a key expected to sign for a script.
type Signer struct {
	// ID identifies the key.
	ID KeyID

	// PubKey is the serialized key when the script reveals it.  It is nil
	// for key hash templates.
	PubKey []byte

	// XOnly is set for BIP 340 keys that sign with schnorr signatures.
	XOnly bool
}

// Resolution describes what it takes to spend a script.  A resolution either
// names the auxiliary script the spend continues into, or lists the signers
// of a terminal script.
type Resolution struct {
	// Class is the standard script class of the resolved script.
	Class txscript.ScriptClass

	// Signers are the keys expected to sign, in script order.
	Signers []Signer

	// Threshold is the number of signatures the script requires.
	Threshold int

	// RedeemScriptHash is set when the spend needs a redeem script with
	// this HASH160.
	RedeemScriptHash *[scriptHashLen]byte

	// WitnessScriptHash is set when the spend needs a witness script with
	// this SHA256.
	WitnessScriptHash *[witnessScriptHashLen]byte
}

// NeedsAuxScript returns whether the spend continues into a redeem or witness
// script.
func (r *Resolution) NeedsAuxScript() bool {
	return r.RedeemScriptHash != nil || r.WitnessScriptHash != nil
}

// IsWitnessProgram returns whether the resolved script is a native segwit
// output.
func (r *Resolution) IsWitnessProgram() bool {
	switch r.Class {
	case txscript.WitnessV0PubKeyHashTy, txscript.WitnessV0ScriptHashTy,
		txscript.WitnessV1TaprootTy:

		return true
	}
	return false
}

// Resolver maps a script to the data needed to spend it.
//
// Resolve must return ErrUnrecognized (possibly wrapped) for scripts it does
// not understand and reserve every other error for scripts that are broken.
type Resolver interface {
	Resolve(script []byte) (*Resolution, error)
}

// StandardResolver resolves the standard script templates using txscript.
// It is stateless and safe for concurrent use.
type StandardResolver struct{}

// A compile-time assertion to ensure StandardResolver implements Resolver.
var _ Resolver = (*StandardResolver)(nil)

// New returns a resolver for the standard script templates.
func New() *StandardResolver {
	return &StandardResolver{}
}

// CheckParse makes sure every opcode in the script parses.  The returned
// error wraps ErrMalformedScript.
func CheckParse(script []byte) error {
	const scriptVersion = 0
	tokenizer := txscript.MakeScriptTokenizer(scriptVersion, script)
	for tokenizer.Next() {
	}
	if err := tokenizer.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedScript, err)
	}
	return nil
}

// Resolve returns the resolution of the passed script.  The resolution does
// not share memory with script.
func (s *StandardResolver) Resolve(script []byte) (*Resolution, error) {
	if err := CheckParse(script); err != nil {
		return nil, err
	}
	if len(script) > 0 && txscript.IsUnspendable(script) {
		return nil, ErrUnspendable
	}

	class := txscript.GetScriptClass(script)
	switch class {
	case txscript.PubKeyTy:
		// OP_DATA_33/65 <pubkey> OP_CHECKSIG
		pubKey := copyBytes(script[1 : len(script)-1])
		return &Resolution{
			Class: class,
			Signers: []Signer{{
				ID:     NewKeyID(pubKey),
				PubKey: pubKey,
			}},
			Threshold: 1,
		}, nil

	case txscript.PubKeyHashTy:
		// OP_DUP OP_HASH160 OP_DATA_20 <hash> OP_EQUALVERIFY OP_CHECKSIG
		return keyHashResolution(class, script[3:3+scriptHashLen]), nil

	case txscript.WitnessV0PubKeyHashTy:
		// OP_0 OP_DATA_20 <hash>
		return keyHashResolution(class, script[2:2+scriptHashLen]), nil

	case txscript.ScriptHashTy:
		// OP_HASH160 OP_DATA_20 <hash> OP_EQUAL
		var hash [scriptHashLen]byte
		copy(hash[:], script[2:2+scriptHashLen])
		return &Resolution{Class: class, RedeemScriptHash: &hash}, nil

	case txscript.WitnessV0ScriptHashTy:
		// OP_0 OP_DATA_32 <hash>
		var hash [witnessScriptHashLen]byte
		copy(hash[:], script[2:2+witnessScriptHashLen])
		return &Resolution{Class: class, WitnessScriptHash: &hash}, nil

	case txscript.MultiSigTy:
		return multiSigResolution(script)

	case txscript.WitnessV1TaprootTy:
		// OP_1 OP_DATA_32 <output key>
		outputKey := copyBytes(script[2:34])
		return &Resolution{
			Class: class,
			Signers: []Signer{{
				ID:     NewKeyID(outputKey),
				PubKey: outputKey,
				XOnly:  true,
			}},
			Threshold: 1,
		}, nil
	}

	log.Tracef("No spend template for %v script %x", class, script)

	return nil, fmt.Errorf("%w: %v", ErrUnrecognized, class)
}

// keyHashResolution returns the resolution of a single key hash template.
func keyHashResolution(class txscript.ScriptClass, hash []byte) *Resolution {
	var id KeyID
	copy(id[:], hash)
	return &Resolution{
		Class:     class,
		Signers:   []Signer{{ID: id}},
		Threshold: 1,
	}
}

// multiSigResolution returns the resolution of a bare m-of-n multisig script.
func multiSigResolution(script []byte) (*Resolution, error) {
	numPubKeys, numSigs, err := txscript.CalcMultiSigStats(script)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScript, err)
	}

	// The small integers other than OP_0 are not data pushes.  OP_0 shows
	// up as an empty push for a zero threshold and is skipped.
	pushes, err := txscript.PushedData(script)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScript, err)
	}
	pubKeys := make([][]byte, 0, len(pushes))
	for _, push := range pushes {
		if len(push) > 0 {
			pubKeys = append(pubKeys, push)
		}
	}
	if len(pubKeys) != numPubKeys {
		return nil, fmt.Errorf("%w: multisig lists %d keys, pushes %d",
			ErrMalformedScript, numPubKeys, len(pubKeys))
	}

	// Nobody has to sign a zero threshold script.
	var signers []Signer
	if numSigs > 0 {
		signers = make([]Signer, 0, len(pubKeys))
		for _, pubKey := range pubKeys {
			signers = append(signers, Signer{
				ID:     NewKeyID(pubKey),
				PubKey: copyBytes(pubKey),
			})
		}
	}

	return &Resolution{
		Class:     txscript.MultiSigTy,
		Signers:   signers,
		Threshold: numSigs,
	}, nil
}

// copyBytes returns a copy of b so resolutions never alias the script they
// were resolved from.
func copyBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}
