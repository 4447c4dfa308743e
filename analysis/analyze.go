// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package analysis

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/psbtanalyze/resolver"
	"github.com/davecgh/go-spew/spew"
)

// Config houses the collaborators of an Analyzer.
type Config struct {
	// Resolver resolves spent output, redeem and witness scripts.  When
	// nil, the standard txscript templates are used.
	Resolver ScriptResolver

	// Workers is the number of goroutines inputs are classified on.
	// Values below two classify inputs in order on the calling goroutine.
	Workers int
}

// Analyzer reports where packets are in the BIP 174 signing workflow.  It
// holds no mutable state, so a single Analyzer may analyze any number of
// packets concurrently.
type Analyzer struct {
	classifier inputClassifier
	workers    int
}

// New returns an Analyzer using the passed configuration.  A nil config
// selects the defaults.
func New(cfg *Config) *Analyzer {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Resolver == nil {
		c.Resolver = resolver.New()
	}

	return &Analyzer{
		classifier: inputClassifier{resolver: c.Resolver},
		workers:    c.Workers,
	}
}

// defaultAnalyzer backs the package level Analyze.
var defaultAnalyzer = New(nil)

// Analyze analyzes packet with the default Analyzer.
func Analyze(packet *psbt.Packet) *TransactionAnalysis {
	return defaultAnalyzer.Analyze(packet)
}

// Analyze reports which role needs to handle packet next, what each input is
// missing and, once every UTXO is known, the estimated size, fee and fee
// rate of the final transaction.
//
// The packet is only read.  An internally inconsistent packet yields an
// analysis carrying nothing but the error.
func (a *Analyzer) Analyze(packet *psbt.Packet) *TransactionAnalysis {
	if err := checkPacket(packet); err != nil {
		return invalidAnalysis(err)
	}
	txHash := newLogClosure(func() string {
		return packet.UnsignedTx.TxHash().String()
	})

	results := a.classifyInputs(packet)

	// Report the first failing input so the error does not depend on the
	// order classification finished in.
	for i := range results {
		if err := results[i].err; err != nil {
			log.Debugf("Packet %v is invalid: %v", txHash, err)
			return invalidAnalysis(err)
		}
	}

	inputSum, allUTXOs, err := sumInputs(results)
	if err != nil {
		return invalidAnalysis(err)
	}
	outputSum, err := sumOutputs(packet)
	if err != nil {
		return invalidAnalysis(err)
	}

	inputs := make([]InputAnalysis, 0, len(results))
	for i := range results {
		inputs = append(inputs, results[i].analysis)
	}
	next := aggregateRole(inputs)

	var est *sizeFeeEstimate
	if len(results) > 0 && allUTXOs {
		if outputSum > inputSum {
			return invalidAnalysis(structuralError(ErrNegativeFee,
				fmt.Sprintf("outputs spend %v but inputs only "+
					"provide %v", outputSum, inputSum)))
		}
		est = estimateSizeFee(packet, results, inputSum, outputSum)
	}

	log.Debugf("Packet %v: %d inputs, next role %v", txHash,
		len(inputs), next)
	log.Tracef("Input analyses of %v: %v", txHash,
		newLogClosure(func() string {
			return spew.Sdump(inputs)
		}))

	return newAnalysis(inputs, next, est)
}

// checkPacket makes sure the packet has an unsigned transaction whose inputs
// and outputs line up with the partial inputs and outputs.
func checkPacket(packet *psbt.Packet) error {
	if packet == nil || packet.UnsignedTx == nil {
		return structuralError(ErrInvalidPacket,
			"packet has no unsigned transaction")
	}
	if err := psbt.VerifyInputOutputLen(packet, false, false); err != nil {
		return structuralError(ErrInvalidPacket, fmt.Sprintf(
			"transaction has %d inputs and %d outputs but packet "+
				"records %d and %d: %v", len(packet.UnsignedTx.TxIn),
			len(packet.UnsignedTx.TxOut), len(packet.Inputs),
			len(packet.Outputs), err))
	}
	return nil
}

// classifyInputs classifies every input of packet.  The results are in input
// order however many workers were used.  Sequential classification stops at
// the first failing input.
func (a *Analyzer) classifyInputs(packet *psbt.Packet) []inputResult {
	txIns := packet.UnsignedTx.TxIn
	results := make([]inputResult, len(txIns))

	if a.workers < 2 || len(txIns) < 2 {
		for i, txIn := range txIns {
			results[i] = a.classifier.classify(
				i, txIn, &packet.Inputs[i],
			)
			if results[i].err != nil {
				return results[:i+1]
			}
		}
		return results
	}

	workers := a.workers
	if workers > len(txIns) {
		workers = len(txIns)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = a.classifier.classify(
					i, txIns[i], &packet.Inputs[i],
				)
			}
		}()
	}
	for i := range txIns {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return results
}

// sumInputs returns the total value of the known UTXOs and whether every
// input has one.
func sumInputs(results []inputResult) (btcutil.Amount, bool, error) {
	var sum int64
	allUTXOs := true
	for i := range results {
		utxo := results[i].utxo
		if utxo == nil {
			allUTXOs = false
			continue
		}

		sum += utxo.Value
		if sum > btcutil.MaxSatoshi {
			return 0, false, inputError(ErrBadValue, i,
				"total input value exceeds the maximum of %v",
				btcutil.Amount(btcutil.MaxSatoshi))
		}
	}
	return btcutil.Amount(sum), allUTXOs, nil
}

// sumOutputs returns the total value of the outputs of packet.
func sumOutputs(packet *psbt.Packet) (btcutil.Amount, error) {
	var sum int64
	for i, txOut := range packet.UnsignedTx.TxOut {
		if txOut.Value < 0 || txOut.Value > btcutil.MaxSatoshi {
			return 0, outputError(ErrBadValue, i,
				"value %d is out of range", txOut.Value)
		}

		sum += txOut.Value
		if sum > btcutil.MaxSatoshi {
			return 0, outputError(ErrBadValue, i,
				"total output value exceeds the maximum of %v",
				btcutil.Amount(btcutil.MaxSatoshi))
		}
	}
	return btcutil.Amount(sum), nil
}
