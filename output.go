// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/psbtanalyze/analysis"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// spentOutput returns the recorded output spent by the input at idx, if any.
// The packet has already passed analysis, so the records agree.
func spentOutput(packet *psbt.Packet, idx int) *wire.TxOut {
	pIn := &packet.Inputs[idx]
	if pIn.WitnessUtxo != nil {
		return pIn.WitnessUtxo
	}
	if pIn.NonWitnessUtxo != nil {
		outIdx := packet.UnsignedTx.TxIn[idx].PreviousOutPoint.Index
		return pIn.NonWitnessUtxo.TxOut[outIdx]
	}
	return nil
}

// describeOutput returns the script class and addresses of txOut on the
// active network.
func describeOutput(txOut *wire.TxOut) string {
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(
		txOut.PkScript, activeNetParams,
	)
	if err != nil || len(addrs) == 0 {
		return class.String()
	}

	encoded := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		encoded = append(encoded, addr.EncodeAddress())
	}
	return fmt.Sprintf("%v %s", class, strings.Join(encoded, ","))
}

// joinKeyIDs returns the hex encoded key IDs separated by commas.
func joinKeyIDs(ids []analysis.KeyID) string {
	s := make([]string, 0, len(ids))
	for _, id := range ids {
		s = append(s, id.String())
	}
	return strings.Join(s, ", ")
}

// writeReport writes the text report of the analysis a of packet to w.
func writeReport(w io.Writer, name string, packet *psbt.Packet,
	a *analysis.TransactionAnalysis) {

	fmt.Fprintf(w, "Packet %s (txid %v)\n", name, packet.UnsignedTx.TxHash())
	if err := a.Err(); err != nil {
		fmt.Fprintf(w, "  invalid: %v\n", err)
		fmt.Fprintf(w, "  next role: %v\n\n", a.Next())
		return
	}

	for i, in := range a.Inputs() {
		prevOut := packet.UnsignedTx.TxIn[i].PreviousOutPoint
		fmt.Fprintf(w, "  input %d spending %v\n", i, prevOut)

		if txOut := spentOutput(packet, i); txOut != nil {
			fmt.Fprintf(w, "    utxo: %v, %s\n",
				btcutil.Amount(txOut.Value), describeOutput(txOut))
		} else {
			fmt.Fprintln(w, "    utxo: unknown")
		}
		fmt.Fprintf(w, "    final: %v\n", in.IsFinal)
		fmt.Fprintf(w, "    next role: %v\n", in.Next)

		if len(in.MissingPubKeys) > 0 {
			fmt.Fprintf(w, "    missing key derivations: %s\n",
				joinKeyIDs(in.MissingPubKeys))
		}
		if len(in.MissingSignatures) > 0 {
			fmt.Fprintf(w, "    missing signatures: %s\n",
				joinKeyIDs(in.MissingSignatures))
		}
		if in.MissingRedeemScript != nil {
			fmt.Fprintf(w, "    missing redeem script: %x\n",
				in.MissingRedeemScript[:])
		}
		if in.MissingWitnessScript != nil {
			fmt.Fprintf(w, "    missing witness script: %x\n",
				in.MissingWitnessScript[:])
		}
	}

	if vsize, ok := a.EstimatedVSize(); ok {
		fmt.Fprintf(w, "  estimated vsize: %d vB\n", vsize)
	}
	if fee, ok := a.Fee(); ok {
		fmt.Fprintf(w, "  fee: %v\n", fee)
	}
	if feeRate, ok := a.EstimatedFeeRate(); ok {
		fmt.Fprintf(w, "  estimated fee rate: %v\n", feeRate)
	}
	fmt.Fprintf(w, "  next role: %v\n\n", a.Next())
}
