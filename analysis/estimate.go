// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package analysis

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// ecdsaSigSize is the worst case size of a DER encoded ECDSA signature
	// with its sighash byte.
	ecdsaSigSize = 72 + 1

	// schnorrSigSize is the worst case size of a BIP 340 signature with an
	// explicit sighash byte.
	schnorrSigSize = 64 + 1

	// compressedPubKeySize is the size of a serialized compressed public
	// key, assumed for keys whose serialization is not recorded.
	compressedPubKeySize = 33

	// txOverheadSize is the size of the version and lock time fields.
	txOverheadSize = 4 + 4

	// txInFixedSize is the size of an input without its signature script
	// and the varint length prefix of it:
	//
	//   - 32 bytes previous transaction hash
	//   - 4 bytes output index
	//   - 4 bytes sequence
	txInFixedSize = 32 + 4 + 4

	// witnessHeaderSize is the size of the segwit marker and flag bytes.
	witnessHeaderSize = 2

	// emptyWitnessSize is the size of the witness of an input without
	// witness data in a segwit transaction: a zero item count.
	emptyWitnessSize = 1
)

// inputSize is the size of the unlocking data of one input.
type inputSize struct {
	sigScript int

	// witness is the size of the serialized witness stack including its
	// item count.  It is zero for inputs without witness data.
	witness int
}

// sizeFeeEstimate holds the estimated size and fee of a transaction.
type sizeFeeEstimate struct {
	vsize   int64
	fee     btcutil.Amount
	feeRate FeeRate
}

// pushSize returns the size of a minimal canonical push of n bytes in a
// signature script.  Zero length pushes are a single OP_0.
func pushSize(n int) int {
	switch {
	case n == 0:
		return 1
	case n <= txscript.OP_DATA_75:
		return 1 + n
	case n <= 0xff:
		return 2 + n
	case n <= 0xffff:
		return 3 + n
	}
	return 5 + n
}

// witnessSize returns the size of a serialized witness stack with items of
// the passed sizes.
func witnessSize(items []int) int {
	size := wire.VarIntSerializeSize(uint64(len(items)))
	for _, item := range items {
		size += wire.VarIntSerializeSize(uint64(item)) + item
	}
	return size
}

// unlockingItems returns the sizes of the stack items satisfying a script of
// the passed class, or false when the template cannot be estimated.
func unlockingItems(class txscript.ScriptClass, threshold int,
	pubKeyLens []int) ([]int, bool) {

	switch class {
	case txscript.PubKeyTy:
		return []int{ecdsaSigSize}, true

	case txscript.PubKeyHashTy, txscript.WitnessV0PubKeyHashTy:
		return []int{ecdsaSigSize, pubKeyLens[0]}, true

	case txscript.MultiSigTy:
		// The extra leading item is the dummy consumed by the
		// OP_CHECKMULTISIG off by one.
		items := make([]int, 1, threshold+1)
		for i := 0; i < threshold; i++ {
			items = append(items, ecdsaSigSize)
		}
		return items, true

	case txscript.WitnessV1TaprootTy:
		return []int{schnorrSigSize}, true
	}

	return nil, false
}

// estimateInput returns the size of the unlocking data of an input.  Final
// inputs report their exact size, other inputs the worst case of their
// spend plan.  The boolean is false when the size cannot be predicted.
func estimateInput(pIn *psbt.PInput, ia *InputAnalysis,
	plan *spendPlan) (inputSize, bool) {

	if ia.IsFinal {
		return inputSize{
			sigScript: len(pIn.FinalScriptSig),
			witness:   len(pIn.FinalScriptWitness),
		}, true
	}
	if plan.spend == nil {
		return inputSize{}, false
	}

	items, ok := unlockingItems(
		plan.spend.Class, plan.spend.Threshold, plan.pubKeyLens,
	)
	if !ok {
		return inputSize{}, false
	}

	var sigScriptItems, witnessItems []int
	switch {
	case plan.witnessScript != nil:
		witnessItems = append(items, len(plan.witnessScript))

	case plan.spend.IsWitnessProgram():
		witnessItems = items

	default:
		sigScriptItems = items
	}
	if plan.redeemScript != nil {
		sigScriptItems = append(sigScriptItems, len(plan.redeemScript))
	}

	var size inputSize
	for _, item := range sigScriptItems {
		size.sigScript += pushSize(item)
	}
	if witnessItems != nil {
		size.witness = witnessSize(witnessItems)
	}
	return size, true
}

// estimateVSize returns the virtual size of tx once its inputs carry
// unlocking data of the passed sizes.
func estimateVSize(tx *wire.MsgTx, inputs []inputSize) int64 {
	baseSize := txOverheadSize +
		wire.VarIntSerializeSize(uint64(len(tx.TxIn))) +
		wire.VarIntSerializeSize(uint64(len(tx.TxOut)))

	hasWitness := false
	for _, in := range inputs {
		baseSize += txInFixedSize + in.sigScript +
			wire.VarIntSerializeSize(uint64(in.sigScript))
		if in.witness > 0 {
			hasWitness = true
		}
	}
	for _, out := range tx.TxOut {
		baseSize += out.SerializeSize()
	}

	witnessWeight := 0
	if hasWitness {
		witnessWeight = witnessHeaderSize
		for _, in := range inputs {
			if in.witness == 0 {
				witnessWeight += emptyWitnessSize
				continue
			}
			witnessWeight += in.witness
		}
	}

	weight := int64(baseSize*blockchain.WitnessScaleFactor + witnessWeight)

	// Round up to the next full virtual byte.
	return (weight + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor
}

// estimateSizeFee estimates the size, fee and fee rate of the transaction of
// packet.  It returns nil unless every input has been classified with its
// UTXO known and the unlocking data of every input can be predicted.
func estimateSizeFee(packet *psbt.Packet, results []inputResult,
	inputSum, outputSum btcutil.Amount) *sizeFeeEstimate {

	if len(results) == 0 {
		return nil
	}

	sizes := make([]inputSize, 0, len(results))
	for i := range results {
		r := &results[i]
		if !r.analysis.HasUTXO {
			return nil
		}

		size, ok := estimateInput(&packet.Inputs[i], &r.analysis, &r.plan)
		if !ok {
			log.Debugf("Input %d: unlocking data cannot be "+
				"estimated yet", i)
			return nil
		}
		sizes = append(sizes, size)
	}

	vsize := estimateVSize(packet.UnsignedTx, sizes)
	fee := inputSum - outputSum

	return &sizeFeeEstimate{
		vsize:   vsize,
		fee:     fee,
		feeRate: NewFeeRate(fee, vsize),
	}
}
