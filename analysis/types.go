// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package analysis

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/psbtanalyze/resolver"
)

// KeyID identifies a public key by the HASH160 of its serialization.
type KeyID = resolver.KeyID

// InputAnalysis holds the analysis of one input of a packet.
type InputAnalysis struct {
	// HasUTXO is set when the output spent by the input is known.
	HasUTXO bool

	// IsFinal is set when the final unlocking data has been assembled.
	IsFinal bool

	// Next is the role that needs to handle the input next.  It is
	// RoleExtractor once the input is final.
	Next Role

	// MissingPubKeys are the keys whose BIP 32 derivation is missing.
	MissingPubKeys []KeyID

	// MissingSignatures are the keys whose partial signature is missing.
	MissingSignatures []KeyID

	// MissingRedeemScript is the HASH160 of the missing redeem script, if
	// any.
	MissingRedeemScript *[20]byte

	// MissingWitnessScript is the SHA256 of the missing witness script, if
	// any.
	MissingWitnessScript *[32]byte
}

// clone returns a deep copy of the input analysis.
func (ia *InputAnalysis) clone() InputAnalysis {
	c := *ia
	if ia.MissingPubKeys != nil {
		c.MissingPubKeys = append([]KeyID(nil), ia.MissingPubKeys...)
	}
	if ia.MissingSignatures != nil {
		c.MissingSignatures = append([]KeyID(nil), ia.MissingSignatures...)
	}
	if ia.MissingRedeemScript != nil {
		hash := *ia.MissingRedeemScript
		c.MissingRedeemScript = &hash
	}
	if ia.MissingWitnessScript != nil {
		hash := *ia.MissingWitnessScript
		c.MissingWitnessScript = &hash
	}
	return c
}

// FeeRate is a fee rate in satoshis per 1000 virtual bytes.
type FeeRate btcutil.Amount

// NewFeeRate returns the rate of paying fee for a transaction of vsize
// virtual bytes.
func NewFeeRate(fee btcutil.Amount, vsize int64) FeeRate {
	if vsize <= 0 {
		return 0
	}
	return FeeRate(int64(fee) * 1000 / vsize)
}

// FeePerKVByte returns the fee paid per 1000 virtual bytes.
func (r FeeRate) FeePerKVByte() btcutil.Amount {
	return btcutil.Amount(r)
}

// FeePerKWeight returns the fee paid per 1000 weight units.
func (r FeeRate) FeePerKWeight() btcutil.Amount {
	return btcutil.Amount(r) / blockchain.WitnessScaleFactor
}

// String returns the fee rate with its unit.
func (r FeeRate) String() string {
	return fmt.Sprintf("%v/kvB", btcutil.Amount(r))
}

// TransactionAnalysis describes where a packet is in the signing workflow.
//
// A TransactionAnalysis is either an error, in which case Err is non-nil and
// every other accessor reports its zero value, or a successful analysis.  It
// is never modified once returned.
type TransactionAnalysis struct {
	inputs []InputAnalysis
	next   Role

	vsize    int64
	fee      btcutil.Amount
	feeRate  FeeRate
	estimate bool

	err error
}

// newAnalysis builds a successful analysis.  A nil est leaves the size, fee
// and fee rate unset.
func newAnalysis(inputs []InputAnalysis, next Role,
	est *sizeFeeEstimate) *TransactionAnalysis {

	a := &TransactionAnalysis{
		inputs: inputs,
		next:   next,
	}
	if est != nil {
		a.vsize = est.vsize
		a.fee = est.fee
		a.feeRate = est.feeRate
		a.estimate = true
	}
	return a
}

// invalidAnalysis builds the analysis of a packet that failed structural
// validation.
func invalidAnalysis(err error) *TransactionAnalysis {
	return &TransactionAnalysis{
		next: RoleCreator,
		err:  err,
	}
}

// Next returns the role that needs to handle the packet next.
func (a *TransactionAnalysis) Next() Role {
	return a.next
}

// Inputs returns a copy of the per-input analyses in input order.
func (a *TransactionAnalysis) Inputs() []InputAnalysis {
	inputs := make([]InputAnalysis, 0, len(a.inputs))
	for i := range a.inputs {
		inputs = append(inputs, a.inputs[i].clone())
	}
	return inputs
}

// NumInputs returns the number of analyzed inputs.
func (a *TransactionAnalysis) NumInputs() int {
	return len(a.inputs)
}

// EstimatedVSize returns the estimated virtual size of the final
// transaction.  The boolean is false when it cannot be computed yet.
func (a *TransactionAnalysis) EstimatedVSize() (int64, bool) {
	return a.vsize, a.estimate
}

// Fee returns the fee paid by the transaction.  The boolean is false when it
// cannot be computed yet.
func (a *TransactionAnalysis) Fee() (btcutil.Amount, bool) {
	return a.fee, a.estimate
}

// EstimatedFeeRate returns the fee rate of the final transaction.  The
// boolean is false when it cannot be computed yet.
func (a *TransactionAnalysis) EstimatedFeeRate() (FeeRate, bool) {
	return a.feeRate, a.estimate
}

// Err returns the structural error found in the packet, if any.  The error
// is a StructuralError.
func (a *TransactionAnalysis) Err() error {
	return a.err
}
