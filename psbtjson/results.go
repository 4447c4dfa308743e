// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package psbtjson converts packet analyses into the JSON result of the
// analyzepsbt RPC.
package psbtjson

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/psbtanalyze/analysis"
)

// AnalyzePsbtInputMissing models the data an input still lacks.
type AnalyzePsbtInputMissing struct {
	PubKeys       []string `json:"pubkeys,omitempty"`
	Signatures    []string `json:"signatures,omitempty"`
	RedeemScript  string   `json:"redeemscript,omitempty"`
	WitnessScript string   `json:"witnessscript,omitempty"`
}

// AnalyzePsbtInput models the analysis of one input of the analyzepsbt
// result.
type AnalyzePsbtInput struct {
	HasUtxo bool                     `json:"has_utxo"`
	IsFinal bool                     `json:"is_final"`
	Missing *AnalyzePsbtInputMissing `json:"missing,omitempty"`
	Next    string                   `json:"next"`
}

// AnalyzePsbtResult models the data returned from the analyzepsbt command.
type AnalyzePsbtResult struct {
	Inputs           []AnalyzePsbtInput `json:"inputs,omitempty"`
	EstimatedVSize   *int64             `json:"estimated_vsize,omitempty"`
	EstimatedFeeRate *float64           `json:"estimated_feerate,omitempty"`
	Fee              *float64           `json:"fee,omitempty"`
	Next             string             `json:"next"`
	Error            string             `json:"error,omitempty"`
}

// NewAnalyzePsbtResult returns the analyzepsbt result for a.  Amounts are
// in BTC and the fee rate in BTC per 1000 virtual bytes.
func NewAnalyzePsbtResult(a *analysis.TransactionAnalysis) *AnalyzePsbtResult {
	result := &AnalyzePsbtResult{
		Next: a.Next().String(),
	}
	if err := a.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	for _, in := range a.Inputs() {
		input := AnalyzePsbtInput{
			HasUtxo: in.HasUTXO,
			IsFinal: in.IsFinal,
			Missing: newInputMissing(&in),
			Next:    in.Next.String(),
		}
		result.Inputs = append(result.Inputs, input)
	}

	if vsize, ok := a.EstimatedVSize(); ok {
		result.EstimatedVSize = &vsize
	}
	if feeRate, ok := a.EstimatedFeeRate(); ok {
		btc := feeRate.FeePerKVByte().ToBTC()
		result.EstimatedFeeRate = &btc
	}
	if fee, ok := a.Fee(); ok {
		btc := fee.ToBTC()
		result.Fee = &btc
	}

	return result
}

// newInputMissing returns what the input lacks, or nil when nothing is
// missing.
func newInputMissing(in *analysis.InputAnalysis) *AnalyzePsbtInputMissing {
	var missing AnalyzePsbtInputMissing
	for _, id := range in.MissingPubKeys {
		missing.PubKeys = append(missing.PubKeys, id.String())
	}
	for _, id := range in.MissingSignatures {
		missing.Signatures = append(missing.Signatures, id.String())
	}
	if in.MissingRedeemScript != nil {
		missing.RedeemScript = hex.EncodeToString(in.MissingRedeemScript[:])
	}
	if in.MissingWitnessScript != nil {
		missing.WitnessScript = hex.EncodeToString(in.MissingWitnessScript[:])
	}

	if missing.PubKeys == nil && missing.Signatures == nil &&
		missing.RedeemScript == "" && missing.WitnessScript == "" {

		return nil
	}
	return &missing
}
