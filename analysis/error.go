// Copyright (c) 2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package analysis

import (
	"fmt"
)

// ErrorCode identifies a kind of structural inconsistency in a packet.
type ErrorCode int

// These constants are used to identify a specific StructuralError.
const (
	// ErrInvalidPacket indicates the packet is missing its unsigned
	// transaction or its input and output lists do not line up with it.
	ErrInvalidPacket ErrorCode = iota

	// ErrUtxoMismatch indicates the recorded UTXO of an input contradicts
	// the outpoint it spends or the other UTXO record of the same input.
	ErrUtxoMismatch

	// ErrBadPrevOut indicates an input spends an output index the recorded
	// previous transaction does not have.
	ErrBadPrevOut

	// ErrBadValue indicates an input or output amount, or a sum of them,
	// is outside the valid monetary range.
	ErrBadValue

	// ErrUnspendable indicates an input spends a provably unspendable
	// output.
	ErrUnspendable

	// ErrScriptMismatch indicates a recorded redeem script, witness script
	// or taproot internal key does not match what the spent output commits
	// to.
	ErrScriptMismatch

	// ErrMalformedScript indicates a script the resolver rejected as
	// unparseable.
	ErrMalformedScript

	// ErrNegativeFee indicates the outputs spend more than the inputs
	// provide.
	ErrNegativeFee

	// numErrorCodes is the maximum error code number used in tests.
	numErrorCodes
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrInvalidPacket:   "ErrInvalidPacket",
	ErrUtxoMismatch:    "ErrUtxoMismatch",
	ErrBadPrevOut:      "ErrBadPrevOut",
	ErrBadValue:        "ErrBadValue",
	ErrUnspendable:     "ErrUnspendable",
	ErrScriptMismatch:  "ErrScriptMismatch",
	ErrMalformedScript: "ErrMalformedScript",
	ErrNegativeFee:     "ErrNegativeFee",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// noIndex is the Index of a StructuralError not tied to a single input or
// output.
const noIndex = -1

// StructuralError identifies a packet that contradicts itself.  Analysis of
// such a packet stops and reports only the error.
//
// Index is the input or output the error was found in, or -1 when the error
// concerns the packet as a whole.
type StructuralError struct {
	ErrorCode   ErrorCode
	Index       int
	Description string
}

// Error satisfies the error interface and prints human-readable errors.
func (e StructuralError) Error() string {
	return e.Description
}

// structuralError creates a StructuralError that is not tied to an input or
// output.
func structuralError(c ErrorCode, desc string) StructuralError {
	return StructuralError{ErrorCode: c, Index: noIndex, Description: desc}
}

// inputError creates a StructuralError for the input at idx.
func inputError(c ErrorCode, idx int, format string,
	args ...interface{}) StructuralError {

	return StructuralError{
		ErrorCode:   c,
		Index:       idx,
		Description: fmt.Sprintf("input %d: ", idx) + fmt.Sprintf(format, args...),
	}
}

// outputError creates a StructuralError for the output at idx.
func outputError(c ErrorCode, idx int, format string,
	args ...interface{}) StructuralError {

	return StructuralError{
		ErrorCode:   c,
		Index:       idx,
		Description: fmt.Sprintf("output %d: ", idx) + fmt.Sprintf(format, args...),
	}
}
