// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package analysis

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/psbtanalyze/resolver"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// testKey returns a deterministic key pair for seed.
func testKey(seed byte) (*btcec.PrivateKey, *btcec.PublicKey) {
	return btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
}

// testPubKey returns the compressed public key of testKey(seed).
func testPubKey(seed byte) []byte {
	_, pub := testKey(seed)
	return pub.SerializeCompressed()
}

// keyID returns the KeyID of the compressed public key of testKey(seed).
func keyID(seed byte) KeyID {
	return resolver.NewKeyID(testPubKey(seed))
}

func buildScript(t *testing.T, b *txscript.ScriptBuilder) []byte {
	t.Helper()

	script, err := b.Script()
	require.NoError(t, err)
	return script
}

func multiSigScript(t *testing.T, m int, pubKeys ...[]byte) []byte {
	b := txscript.NewScriptBuilder().AddInt64(int64(m))
	for _, pubKey := range pubKeys {
		b.AddData(pubKey)
	}
	b.AddInt64(int64(len(pubKeys))).AddOp(txscript.OP_CHECKMULTISIG)
	return buildScript(t, b)
}

func p2pkhScript(t *testing.T, pubKey []byte) []byte {
	return buildScript(t, txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
		AddData(btcutil.Hash160(pubKey)).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG))
}

func p2wpkhScript(t *testing.T, pubKey []byte) []byte {
	return buildScript(t, txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).AddData(btcutil.Hash160(pubKey)))
}

func p2shScript(t *testing.T, redeemScript []byte) []byte {
	return buildScript(t, txscript.NewScriptBuilder().
		AddOp(txscript.OP_HASH160).AddData(btcutil.Hash160(redeemScript)).
		AddOp(txscript.OP_EQUAL))
}

func p2wshScript(t *testing.T, witnessScript []byte) []byte {
	hash := sha256.Sum256(witnessScript)
	return buildScript(t, txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).AddData(hash[:]))
}

func p2trScript(t *testing.T, outputKey []byte) []byte {
	return buildScript(t, txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).AddData(outputKey))
}

func derivation(pubKey []byte) *psbt.Bip32Derivation {
	return &psbt.Bip32Derivation{
		PubKey:               pubKey,
		MasterKeyFingerprint: 0x01020304,
		Bip32Path:            []uint32{84 + 0x80000000, 0x80000000, 0, 0},
	}
}

// partialSig returns a placeholder signature for pubKey.  Signatures are
// never verified by the analysis.
func partialSig(pubKey []byte) *psbt.PartialSig {
	return &psbt.PartialSig{
		PubKey:    pubKey,
		Signature: append(bytes.Repeat([]byte{0x30}, 71), 0x01),
	}
}

// newTestPacket returns a packet spending numInputs distinct outpoints into
// the passed outputs.
func newTestPacket(t *testing.T, numInputs int,
	outputs ...*wire.TxOut) *psbt.Packet {

	t.Helper()

	outPoints := make([]*wire.OutPoint, 0, numInputs)
	sequences := make([]uint32, 0, numInputs)
	for i := 0; i < numInputs; i++ {
		hash := chainhash.HashH([]byte{byte(i)})
		outPoints = append(outPoints, wire.NewOutPoint(&hash, uint32(i)))
		sequences = append(sequences, wire.MaxTxInSequenceNum)
	}

	packet, err := psbt.New(outPoints, outputs, 2, 0, sequences)
	require.NoError(t, err)
	return packet
}

// prevTxFor returns a previous transaction paying value to pkScript at the
// output index spent by input idx of packet, and points the input at it.
func prevTxFor(packet *psbt.Packet, idx int, value int64,
	pkScript []byte) *wire.MsgTx {

	prevTx := wire.NewMsgTx(2)
	prevTx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))

	outIdx := packet.UnsignedTx.TxIn[idx].PreviousOutPoint.Index
	for i := uint32(0); i <= outIdx; i++ {
		prevTx.AddTxOut(wire.NewTxOut(value, pkScript))
	}

	hash := prevTx.TxHash()
	packet.UnsignedTx.TxIn[idx].PreviousOutPoint.Hash = hash
	return prevTx
}
