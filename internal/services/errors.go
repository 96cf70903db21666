package services

import (
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/validation"
)

// Kind classifies a service failure. Handlers map kinds to HTTP status codes.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindAuthorization
	KindNotFound
	KindConflict
	KindBusinessRule
	KindLedgerRejected
	KindLedgerTimeout
	KindLedgerUnavailable
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBusinessRule:
		return "business_rule"
	case KindLedgerRejected:
		return "ledger_rejected"
	case KindLedgerTimeout:
		return "ledger_timeout"
	case KindLedgerUnavailable:
		return "ledger_unavailable"
	case KindPersistence:
		return "persistence"
	}
	return "internal"
}

type FieldError = validation.FieldError

// Error is the error type returned by every service operation.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Err     error

	sentinel *Error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel e was derived from.
func (e *Error) Is(target error) bool {
	return e.sentinel != nil && target == error(e.sentinel)
}

func newSentinel(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrEmailTaken         = newSentinel(KindConflict, "email already registered")
	ErrUsernameTaken      = newSentinel(KindConflict, "username already taken")
	ErrWalletTaken        = newSentinel(KindConflict, "wallet address already registered")
	ErrInvalidCredentials = newSentinel(KindAuth, "invalid email or password")
	ErrInvalidToken       = newSentinel(KindAuth, "invalid or expired refresh token")
	ErrAccountInactive    = newSentinel(KindAuth, "account is deactivated")
	ErrUserNotFound       = newSentinel(KindNotFound, "user not found")
	ErrWrongPassword      = newSentinel(KindValidation, "current password is incorrect")

	ErrForbiddenRole          = newSentinel(KindAuthorization, "insufficient permissions for this action")
	ErrCreditNotFound         = newSentinel(KindNotFound, "credit not found")
	ErrProducerNotFound       = newSentinel(KindNotFound, "producer not found")
	ErrNotProducer            = newSentinel(KindValidation, "wallet address does not belong to a producer")
	ErrRecipientNotFound      = newSentinel(KindNotFound, "recipient not found")
	ErrSelfTransfer           = newSentinel(KindValidation, "cannot transfer credits to yourself")
	ErrNotOwner               = newSentinel(KindAuthorization, "only the current owner can perform this action")
	ErrCreditRetired          = newSentinel(KindBusinessRule, "credit is retired")
	ErrAlreadyRetired         = newSentinel(KindBusinessRule, "credit is already retired")
	ErrInsufficientBalance    = newSentinel(KindBusinessRule, "insufficient credit balance")
	ErrConcurrentModification = newSentinel(KindConflict, "credit was modified concurrently, retry the request")
)

// wrapSentinel attaches cause to a copy of sentinel that still matches it
// under errors.Is.
func wrapSentinel(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause, sentinel: sentinel}
}

func validationError(msg string, details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

// validate runs struct-tag validation on req.
func validate(req any) error {
	if details := validation.Struct(req); len(details) > 0 {
		return validationError("Validation failed", details...)
	}
	return nil
}

func persistenceError(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

// ledgerError classifies a ledger client failure.
func ledgerError(op string, err error) *Error {
	switch {
	case errors.Is(err, ledger.ErrTimeout):
		return &Error{Kind: KindLedgerTimeout, Message: op + ": ledger call timed out", Err: err}
	case errors.Is(err, ledger.ErrRejected):
		return &Error{Kind: KindLedgerRejected, Message: op + ": ledger rejected the transaction", Err: err}
	case errors.Is(err, ledger.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: op + ": not found on ledger", Err: err}
	default:
		return &Error{Kind: KindLedgerUnavailable, Message: op + ": ledger unavailable", Err: err}
	}
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
