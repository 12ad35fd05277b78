package models

import (
	"errors"
	"fmt"
)

var (
	ErrConnectivity         = errors.New("connectivity failure")         // transient, retried
	ErrAlreadyRegistered    = errors.New("epoch already registered")     // idempotent short-circuit
	ErrAlreadyInFlight      = errors.New("submission already in flight") // idempotent short-circuit
	ErrVerificationMismatch = errors.New("proof does not match committed root")
	ErrFatalSubmission      = errors.New("fatal submission failure")
	ErrNotYetFinalised      = errors.New("epoch not yet finalised")
	ErrUninitialised        = errors.New("chains not initialised")
	ErrUnknownChain         = errors.New("unknown chain")
	ErrClaimsInProgress     = errors.New("claims already being processed")
	ErrTxNotFound           = errors.New("transaction not found")
)

// ConnectivityError wraps a transient transport failure.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// Connectivity marks err as transient.
func Connectivity(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnectivityError{Op: op, Err: err}
}

// MalformedRecordError describes a transaction rejected by the scan filter.
type MalformedRecordError struct {
	Code   string
	TxID   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: tx %s: %s", e.Code, e.TxID, e.Reason)
}

// SubmissionError marks a failure that needs operator attention.
func SubmissionError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrFatalSubmission, err)
}
