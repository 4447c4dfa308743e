// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package analysis

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/psbtanalyze/resolver"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ScriptResolver resolves a script into the signers and auxiliary scripts
// needed to spend it.  Implementations must report scripts they do not
// understand with an error wrapping resolver.ErrUnrecognized.
type ScriptResolver interface {
	Resolve(script []byte) (*resolver.Resolution, error)
}

// spendPlan records how a non-final input is going to be unlocked.  A nil
// spend means the unlocking data cannot be predicted yet.
type spendPlan struct {
	spend         *resolver.Resolution
	redeemScript  []byte
	witnessScript []byte

	// pubKeyLens holds the expected serialized size of each signer key of
	// spend, in signer order.
	pubKeyLens []int
}

// inputResult is everything classification learns about one input.
type inputResult struct {
	analysis InputAnalysis
	plan     spendPlan
	utxo     *wire.TxOut
	err      error
}

// inputClassifier works out the next role of individual inputs.
type inputClassifier struct {
	resolver ScriptResolver
}

// isFinalized returns whether final unlocking data is recorded for the
// input.
func isFinalized(pIn *psbt.PInput) bool {
	return pIn.FinalScriptSig != nil || pIn.FinalScriptWitness != nil
}

// inputUTXO returns the output spent by the input at idx, or nil when the
// packet does not record it.  Contradicting UTXO records are an error.
func inputUTXO(idx int, txIn *wire.TxIn, pIn *psbt.PInput) (*wire.TxOut, error) {
	prevOut := txIn.PreviousOutPoint

	var utxo *wire.TxOut
	if prevTx := pIn.NonWitnessUtxo; prevTx != nil {
		if txHash := prevTx.TxHash(); txHash != prevOut.Hash {
			return nil, inputError(ErrUtxoMismatch, idx,
				"previous transaction %v does not match "+
					"outpoint %v", txHash, prevOut)
		}
		if prevOut.Index >= uint32(len(prevTx.TxOut)) {
			return nil, inputError(ErrBadPrevOut, idx,
				"previous transaction has no output %d",
				prevOut.Index)
		}
		utxo = prevTx.TxOut[prevOut.Index]
	}

	if pIn.WitnessUtxo != nil {
		if utxo != nil && !psbt.TxOutsEqual(utxo, pIn.WitnessUtxo) {
			return nil, inputError(ErrUtxoMismatch, idx,
				"witness utxo disagrees with output %v of "+
					"the previous transaction", prevOut)
		}
		utxo = pIn.WitnessUtxo
	}

	if utxo == nil {
		return nil, nil
	}
	if utxo.Value < 0 || utxo.Value > btcutil.MaxSatoshi {
		return nil, inputError(ErrBadValue, idx,
			"utxo value %d is out of range", utxo.Value)
	}
	if err := resolver.CheckParse(utxo.PkScript); err != nil {
		return nil, inputError(ErrMalformedScript, idx,
			"utxo script of %v: %v", prevOut, err)
	}
	if txscript.IsUnspendable(utxo.PkScript) {
		return nil, inputError(ErrUnspendable, idx,
			"spends unspendable output %v", prevOut)
	}

	return utxo, nil
}

// classify analyzes the input at idx.  It only reads from the passed input.
func (c *inputClassifier) classify(idx int, txIn *wire.TxIn,
	pIn *psbt.PInput) inputResult {

	utxo, err := inputUTXO(idx, txIn, pIn)
	if err != nil {
		return inputResult{err: err}
	}

	r := inputResult{
		utxo: utxo,
		analysis: InputAnalysis{
			HasUTXO: utxo != nil,
			Next:    RoleExtractor,
		},
	}

	switch {
	case isFinalized(pIn):
		r.analysis.IsFinal = true

	case utxo == nil:
		// Without the spent output there is no script to look at.
		r.analysis.Next = RoleUpdater

	default:
		r.analysis.Next, r.err = c.classifySpend(
			idx, utxo.PkScript, pIn, &r.analysis, &r.plan,
		)
	}

	log.Tracef("Input %d: has_utxo=%v final=%v next=%v", idx,
		r.analysis.HasUTXO, r.analysis.IsFinal, r.analysis.Next)

	return r
}

// resolve resolves script on behalf of the input at idx.  Unrecognized
// scripts yield a nil resolution and no error.
func (c *inputClassifier) resolve(idx int,
	script []byte) (*resolver.Resolution, error) {

	res, err := c.resolver.Resolve(script)
	switch {
	case err == nil:
		return res, nil

	case errors.Is(err, resolver.ErrUnrecognized):
		log.Debugf("Input %d: %v", idx, err)
		return nil, nil

	case errors.Is(err, resolver.ErrUnspendable):
		return nil, inputError(ErrUnspendable, idx, "%v", err)

	default:
		return nil, inputError(ErrMalformedScript, idx, "%v", err)
	}
}

// classifySpend walks from the spent output script through any redeem and
// witness scripts down to the signers and returns the next role of the
// input.  Missing data is recorded in ia and the spend path in plan.
func (c *inputClassifier) classifySpend(idx int, pkScript []byte,
	pIn *psbt.PInput, ia *InputAnalysis, plan *spendPlan) (Role, error) {

	res, err := c.resolve(idx, pkScript)
	if err != nil || res == nil {
		return RoleUpdater, err
	}

	if res.RedeemScriptHash != nil {
		if pIn.RedeemScript == nil {
			hash := *res.RedeemScriptHash
			ia.MissingRedeemScript = &hash
			return RoleUpdater, nil
		}
		scriptHash := btcutil.Hash160(pIn.RedeemScript)
		if !bytes.Equal(scriptHash, res.RedeemScriptHash[:]) {
			return RoleUpdater, inputError(ErrScriptMismatch, idx,
				"redeem script hash %x does not match %x",
				scriptHash, res.RedeemScriptHash[:])
		}
		plan.redeemScript = pIn.RedeemScript

		res, err = c.resolve(idx, pIn.RedeemScript)
		if err != nil || res == nil {
			return RoleUpdater, err
		}

		// Script hashes do not nest and taproot outputs cannot be
		// wrapped.
		if res.RedeemScriptHash != nil ||
			res.Class == txscript.WitnessV1TaprootTy {

			log.Debugf("Input %d: cannot spend %v redeem script",
				idx, res.Class)
			return RoleUpdater, nil
		}
	}

	if res.WitnessScriptHash != nil {
		if pIn.WitnessScript == nil {
			hash := *res.WitnessScriptHash
			ia.MissingWitnessScript = &hash
			return RoleUpdater, nil
		}
		scriptHash := sha256.Sum256(pIn.WitnessScript)
		if scriptHash != *res.WitnessScriptHash {
			return RoleUpdater, inputError(ErrScriptMismatch, idx,
				"witness script hash %x does not match %x",
				scriptHash[:], res.WitnessScriptHash[:])
		}
		plan.witnessScript = pIn.WitnessScript

		res, err = c.resolve(idx, pIn.WitnessScript)
		if err != nil || res == nil {
			return RoleUpdater, err
		}
		if res.NeedsAuxScript() || res.IsWitnessProgram() {
			log.Debugf("Input %d: cannot spend %v witness script",
				idx, res.Class)
			return RoleUpdater, nil
		}
	}

	keys, err := newRecordedKeys(idx, pIn, res)
	if err != nil {
		return RoleUpdater, err
	}

	plan.spend = res
	plan.pubKeyLens = make([]int, len(res.Signers))

	var missingKeys, missingSigs []KeyID
	seen := make(map[KeyID]struct{}, len(res.Signers))
	for i, signer := range res.Signers {
		plan.pubKeyLens[i] = keys.pubKeyLen(signer)

		if _, ok := seen[signer.ID]; ok {
			continue
		}
		seen[signer.ID] = struct{}{}

		// A recorded signature carries its key, so the updater has
		// nothing left to add for a key that already signed.
		hasSig := keys.hasSignature(signer)
		if !hasSig && !keys.hasDerivation(signer) {
			missingKeys = append(missingKeys, signer.ID)
		}
		if !hasSig {
			missingSigs = append(missingSigs, signer.ID)
		}
	}

	switch {
	case len(missingKeys) > 0:
		ia.MissingPubKeys = missingKeys
		return RoleUpdater, nil

	case len(missingSigs) > 0:
		ia.MissingSignatures = missingSigs
		return RoleSigner, nil
	}

	return RoleFinalizer, nil
}

// recordedKeys indexes the keys an input records derivations and signatures
// for.
type recordedKeys struct {
	derivations map[KeyID][]byte
	signatures  map[KeyID][]byte

	taprootDerivations map[KeyID]struct{}
	taprootKeySpendSig bool

	// internalKeyID is set when the recorded taproot internal key commits
	// to the output key being spent.
	internalKeyID *KeyID
}

// newRecordedKeys indexes the derivations and signatures of the input at idx
// against the signers of res.
func newRecordedKeys(idx int, pIn *psbt.PInput,
	res *resolver.Resolution) (*recordedKeys, error) {

	keys := &recordedKeys{
		derivations:        make(map[KeyID][]byte, len(pIn.Bip32Derivation)),
		signatures:         make(map[KeyID][]byte, len(pIn.PartialSigs)),
		taprootDerivations: make(map[KeyID]struct{}),
		taprootKeySpendSig: len(pIn.TaprootKeySpendSig) > 0,
	}
	for _, d := range pIn.Bip32Derivation {
		keys.derivations[resolver.NewKeyID(d.PubKey)] = d.PubKey
	}
	for _, sig := range pIn.PartialSigs {
		keys.signatures[resolver.NewKeyID(sig.PubKey)] = sig.PubKey
	}
	for _, d := range pIn.TaprootBip32Derivation {
		keys.taprootDerivations[resolver.NewKeyID(d.XOnlyPubKey)] = struct{}{}
	}

	if pIn.TaprootInternalKey == nil {
		return keys, nil
	}
	for _, signer := range res.Signers {
		if !signer.XOnly {
			continue
		}

		internalKey, err := schnorr.ParsePubKey(pIn.TaprootInternalKey)
		if err != nil {
			return nil, inputError(ErrMalformedScript, idx,
				"invalid taproot internal key: %v", err)
		}
		outputKey := txscript.ComputeTaprootOutputKey(
			internalKey, pIn.TaprootMerkleRoot,
		)
		if !bytes.Equal(schnorr.SerializePubKey(outputKey), signer.PubKey) {
			return nil, inputError(ErrScriptMismatch, idx,
				"taproot internal key %x does not commit to "+
					"output key %x", pIn.TaprootInternalKey,
				signer.PubKey)
		}

		id := resolver.NewKeyID(pIn.TaprootInternalKey)
		keys.internalKeyID = &id
	}

	return keys, nil
}

// hasDerivation returns whether a key derivation is recorded for signer.
func (k *recordedKeys) hasDerivation(signer resolver.Signer) bool {
	if !signer.XOnly {
		_, ok := k.derivations[signer.ID]
		return ok
	}

	if _, ok := k.taprootDerivations[signer.ID]; ok {
		return true
	}
	if k.internalKeyID != nil {
		_, ok := k.taprootDerivations[*k.internalKeyID]
		return ok
	}
	return false
}

// hasSignature returns whether a signature is recorded for signer.
func (k *recordedKeys) hasSignature(signer resolver.Signer) bool {
	if signer.XOnly {
		return k.taprootKeySpendSig
	}
	_, ok := k.signatures[signer.ID]
	return ok
}

// pubKeyLen returns the serialized size the key of signer will have in the
// unlocking data.
func (k *recordedKeys) pubKeyLen(signer resolver.Signer) int {
	switch {
	case signer.PubKey != nil:
		return len(signer.PubKey)
	case k.derivations[signer.ID] != nil:
		return len(k.derivations[signer.ID])
	case k.signatures[signer.ID] != nil:
		return len(k.signatures[signer.ID])
	}
	return compressedPubKeySize
}
