// Package errs defines the error taxonomy shared by the session, repository
// and action layers. Every failure that reaches the presentation layer is an
// *Error carrying one Kind, so callers can branch with errors.Is.
package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindEnvironment Kind = iota + 1
	KindUserRejected
	KindUnrecognizedChain
	KindValidation
	KindQuery
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindEnvironment:
		return "environment"
	case KindUserRejected:
		return "user rejected"
	case KindUnrecognizedChain:
		return "unrecognized chain"
	case KindValidation:
		return "validation"
	case KindQuery:
		return "query"
	case KindTransaction:
		return "transaction"
	}
	return "unknown"
}

// Reason narrows a transaction failure to the rule the contract enforced.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonReverted          Reason = "reverted"
	ReasonNotForSale        Reason = "not for sale"
	ReasonIncorrectPayment  Reason = "incorrect payment"
	ReasonPriceChanged      Reason = "price changed"
	ReasonNotOwner          Reason = "not owner"
	ReasonNotAuthorized     Reason = "not authorized"
	ReasonAlreadyRetired    Reason = "already retired"
	ReasonInsufficientFunds Reason = "insufficient funds"
	ReasonTimeout           Reason = "timeout"
)

// Error is the single error type surfaced to callers.
type Error struct {
	Kind   Kind
	Op     string
	Reason Reason
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.Reason != ReasonNone:
		b.WriteString(string(e.Reason))
	default:
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error on Kind, and on Reason when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == ReasonNone || t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrEnvironment       = &Error{Kind: KindEnvironment}
	ErrUserRejected      = &Error{Kind: KindUserRejected}
	ErrUnrecognizedChain = &Error{Kind: KindUnrecognizedChain}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrQuery             = &Error{Kind: KindQuery}
	ErrTransaction       = &Error{Kind: KindTransaction}

	ErrNotForSale        = &Error{Kind: KindTransaction, Reason: ReasonNotForSale}
	ErrIncorrectPayment  = &Error{Kind: KindTransaction, Reason: ReasonIncorrectPayment}
	ErrPriceChanged      = &Error{Kind: KindTransaction, Reason: ReasonPriceChanged}
	ErrNotOwner          = &Error{Kind: KindTransaction, Reason: ReasonNotOwner}
	ErrNotAuthorized     = &Error{Kind: KindTransaction, Reason: ReasonNotAuthorized}
	ErrAlreadyRetired    = &Error{Kind: KindTransaction, Reason: ReasonAlreadyRetired}
	ErrInsufficientFunds = &Error{Kind: KindTransaction, Reason: ReasonInsufficientFunds}
	ErrTxTimeout         = &Error{Kind: KindTransaction, Reason: ReasonTimeout}
)

// Common environment failures.
var (
	ErrNoWallet     = errors.New("no wallet available")
	ErrNotConnected = errors.New("not connected")
	ErrNoDeployment = errors.New("no contract deployment for chain")
)

// Environment wraps err as an environment failure.
func Environment(op string, err error) *Error {
	return &Error{Kind: KindEnvironment, Op: op, Err: err}
}

// UserRejected reports that the wallet user declined a request.
func UserRejected(op string, err error) *Error {
	return &Error{Kind: KindUserRejected, Op: op, Msg: "request rejected by user", Err: err}
}

// UnrecognizedChain reports a chain the wallet does not know.
func UnrecognizedChain(op string, chainID int64) *Error {
	return &Error{Kind: KindUnrecognizedChain, Op: op, Msg: fmt.Sprintf("chain %d is not added to the wallet", chainID)}
}

// Validation reports a local input problem. No network call has been made.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Query wraps a failed contract read.
func Query(op string, err error) *Error {
	return &Error{Kind: KindQuery, Op: op, Err: err}
}

// Transaction wraps a failed submission or confirmation. If err already is
// an *Error it is returned unchanged apart from a missing Op.
func Transaction(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			cp := *e
			cp.Op = op
			return &cp
		}
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransaction, Op: op, Reason: ReasonTimeout, Err: err}
	}
	return &Error{Kind: KindTransaction, Op: op, Reason: ReasonFromText(errText(err)), Err: err}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// ReasonOf returns the transaction reason carried by err, if any.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

var reasonMarkers = []struct {
	marker string
	reason Reason
}{
	{"not for sale", ReasonNotForSale},
	{"incorrect payment", ReasonIncorrectPayment},
	{"insufficient payment", ReasonIncorrectPayment},
	{"not the owner", ReasonNotOwner},
	{"not owner", ReasonNotOwner},
	{"caller is not the owner", ReasonNotOwner},
	{"not authorized", ReasonNotAuthorized},
	{"already retired", ReasonAlreadyRetired},
	{"insufficient funds", ReasonInsufficientFunds},
}

// ReasonFromText maps a revert or node error message to a Reason.
// Unknown messages map to ReasonReverted.
func ReasonFromText(msg string) Reason {
	lower := strings.ToLower(msg)
	for _, m := range reasonMarkers {
		if strings.Contains(lower, m.marker) {
			return m.reason
		}
	}
	return ReasonReverted
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
