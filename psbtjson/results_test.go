// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package psbtjson

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/psbtanalyze/analysis"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func testPubKey(seed byte) []byte {
	_, pub := btcec.PrivKeyFromBytes(bytes.Repeat([]byte{seed}, 32))
	return pub.SerializeCompressed()
}

func p2wpkhScript(t *testing.T, pubKey []byte) []byte {
	script, err := txscript.NewScriptBuilder().AddOp(txscript.OP_0).
		AddData(btcutil.Hash160(pubKey)).Script()
	require.NoError(t, err)
	return script
}

func newPacket(t *testing.T, numInputs int, outputs ...*wire.TxOut) *psbt.Packet {
	outPoints := make([]*wire.OutPoint, 0, numInputs)
	sequences := make([]uint32, 0, numInputs)
	for i := 0; i < numInputs; i++ {
		hash := chainhash.HashH([]byte{byte(i)})
		outPoints = append(outPoints, wire.NewOutPoint(&hash, 0))
		sequences = append(sequences, wire.MaxTxInSequenceNum)
	}

	packet, err := psbt.New(outPoints, outputs, 2, 0, sequences)
	require.NoError(t, err)
	return packet
}

// TestNewAnalyzePsbtResult ensures analyses are converted into the
// analyzepsbt JSON result.
func TestNewAnalyzePsbtResult(t *testing.T) {
	pk1, pk2 := testPubKey(1), testPubKey(2)

	multiSig, err := txscript.NewScriptBuilder().AddOp(txscript.OP_1).
		AddData(pk1).AddData(pk2).AddOp(txscript.OP_2).
		AddOp(txscript.OP_CHECKMULTISIG).Script()
	require.NoError(t, err)
	witnessHash := sha256.Sum256(multiSig)
	p2wsh, err := txscript.NewScriptBuilder().AddOp(txscript.OP_0).
		AddData(witnessHash[:]).Script()
	require.NoError(t, err)

	tests := []struct {
		name   string
		packet func(t *testing.T) *psbt.Packet
		want   string
	}{{
		name: "no inputs",
		packet: func(t *testing.T) *psbt.Packet {
			return newPacket(t, 0)
		},
		want: `{"next":"creator"}`,
	}, {
		name: "missing utxo and witness script",
		packet: func(t *testing.T) *psbt.Packet {
			p := newPacket(t, 2, wire.NewTxOut(1_000, p2wsh))
			p.Inputs[0].WitnessUtxo = wire.NewTxOut(2_000, p2wsh)
			return p
		},
		want: `{
			"inputs": [{
				"has_utxo": true,
				"is_final": false,
				"missing": {"witnessscript": "` +
			hex.EncodeToString(witnessHash[:]) + `"},
				"next": "updater"
			}, {
				"has_utxo": false,
				"is_final": false,
				"next": "updater"
			}],
			"next": "updater"
		}`,
	}, {
		name: "missing signature with estimate",
		packet: func(t *testing.T) *psbt.Packet {
			p := newPacket(t, 1, wire.NewTxOut(
				90_000, p2wpkhScript(t, pk2),
			))
			p.Inputs[0].WitnessUtxo = wire.NewTxOut(
				100_000, p2wpkhScript(t, pk1),
			)
			p.Inputs[0].Bip32Derivation = []*psbt.Bip32Derivation{{
				PubKey:               pk1,
				MasterKeyFingerprint: 1,
				Bip32Path:            []uint32{0},
			}}
			return p
		},
		want: `{
			"inputs": [{
				"has_utxo": true,
				"is_final": false,
				"missing": {"signatures": ["` +
			hex.EncodeToString(btcutil.Hash160(pk1)) + `"]},
				"next": "signer"
			}],
			"estimated_vsize": 110,
			"estimated_feerate": 0.00090909,
			"fee": 0.0001,
			"next": "signer"
		}`,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a := analysis.Analyze(test.packet(t))
			b, err := json.Marshal(NewAnalyzePsbtResult(a))
			require.NoError(t, err)
			require.JSONEq(t, test.want, string(b))
		})
	}
}

// TestNewAnalyzePsbtResultError ensures an invalid packet only reports the
// error and the creator role.
func TestNewAnalyzePsbtResultError(t *testing.T) {
	p := newPacket(t, 1, wire.NewTxOut(2_001, p2wpkhScript(t, testPubKey(2))))
	p.Inputs[0].WitnessUtxo = wire.NewTxOut(2_000, p2wpkhScript(t, testPubKey(1)))

	a := analysis.Analyze(p)
	require.Error(t, a.Err())

	result := NewAnalyzePsbtResult(a)
	require.Equal(t, &AnalyzePsbtResult{
		Next:  "creator",
		Error: a.Err().Error(),
	}, result)
}
