// Package faults defines the structured failure type shared by the contract,
// builder, assertion and oracle packages.
package faults

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindPrecondition: the attempted operation cannot proceed in the current
	// ledger state (UTXO spent, lock not reached, wrong wallet, no funds).
	KindPrecondition Kind = "Precondition"
	// KindPredicate: the spend would be rejected by the covenant predicate.
	// Such a transaction must never be broadcast.
	KindPredicate Kind = "Predicate"
	// KindMalformed: untrusted external bytes failed to decode.
	KindMalformed Kind = "Malformed"
	// KindTransport: the chain oracle could not be reached or refused a request.
	KindTransport Kind = "Transport"
	KindInternal  Kind = "Internal"
)

// Error is the structured failure type.
//
// RuleID is a stable identifier (e.g. BOND-PRED-201, ASSERT-DEC-102) naming the
// check that failed. Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New returns a structured error without a cause.
func New(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// Wrap returns a structured error carrying cause. A nil cause behaves like New.
func Wrap(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return New(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// Retryable reports whether err may be retried from scratch. Only transport
// failures qualify; everything else needs its cause corrected first.
func Retryable(err error) bool {
	return IsKind(err, KindTransport)
}
