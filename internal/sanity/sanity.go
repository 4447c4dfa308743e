// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sanity verifies the environment the analyzer runs in is usable
// before any packet is handled.
package sanity

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Clock returns the current time.  It is a variable so tests can replace it.
var Clock = time.Now

// Check runs every environment check and returns the first failure.
func Check() error {
	if err := checkECC(); err != nil {
		return fmt.Errorf("elliptic curve cryptography sanity check "+
			"failed: %w", err)
	}
	if err := checkRandom(); err != nil {
		return fmt.Errorf("random number generator sanity check "+
			"failed: %w", err)
	}
	if err := checkClock(Clock()); err != nil {
		return fmt.Errorf("clock sanity check failed: %w", err)
	}
	return nil
}

// checkECC signs a digest with a fresh key and verifies the signature
// round trips through its DER encoding.
func checkECC() error {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return err
	}

	hash := chainhash.HashB([]byte("psbtanalyze sanity check"))
	sig := ecdsa.Sign(privKey, hash)

	parsed, err := ecdsa.ParseDERSignature(sig.Serialize())
	if err != nil {
		return err
	}
	if !parsed.Verify(hash, privKey.PubKey()) {
		return errors.New("signature does not verify")
	}

	hash[0] ^= 0x01
	if parsed.Verify(hash, privKey.PubKey()) {
		return errors.New("signature verifies for another digest")
	}
	return nil
}

// checkRandom makes sure two reads from the system randomness source are
// neither zero nor equal.
func checkRandom() error {
	var a, b [32]byte
	if _, err := rand.Read(a[:]); err != nil {
		return err
	}
	if _, err := rand.Read(b[:]); err != nil {
		return err
	}

	var zero [32]byte
	if a == zero || b == zero {
		return errors.New("read all zero bytes")
	}
	if bytes.Equal(a[:], b[:]) {
		return errors.New("repeated output")
	}
	return nil
}

// checkClock makes sure now is not before the main network genesis block.
func checkClock(now time.Time) error {
	genesis := chaincfg.MainNetParams.GenesisBlock.Header.Timestamp
	if now.Before(genesis) {
		return fmt.Errorf("system time %v is before the genesis block "+
			"time %v", now, genesis)
	}
	return nil
}
