// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package analysis reports where a partially signed bitcoin transaction (BIP
174) is in its signing workflow.

Given a decoded packet, Analyze determines for every input and for the packet
as a whole which of the workflow roles (creator, updater, signer, finalizer,
extractor) must act next, and what exactly is missing: UTXOs, redeem and
witness scripts, key derivations or partial signatures.  Once every spent
output is known it also estimates the virtual size, fee and fee rate of the
final transaction.

The analysis never modifies the packet, performs no I/O and does not check
signatures; a recorded partial signature is taken at face value.  A packet
that contradicts itself, for example by recording two different versions of
the output an input spends, is reported through Err and nothing else:

	a := analysis.Analyze(packet)
	if err := a.Err(); err != nil {
		return err
	}
	fmt.Println("next role:", a.Next())
	if fee, ok := a.Fee(); ok {
		fmt.Println("fee:", fee)
	}

Scripts are mapped to their signers by a ScriptResolver.  The default
resolver understands the standard templates; other scripts leave their input
with the updater without further detail.
*/
package analysis
