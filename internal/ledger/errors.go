package ledger

import (
	"errors"
	"fmt"

	"github.com/roach88/flyter/internal/ir"
)

// Code categorizes ledger errors.
type Code string

const (
	// CodeNotFound indicates no message or stats record exists at the id.
	CodeNotFound Code = "NOT_FOUND"

	// CodeNoSuchMessage indicates a reply target does not exist.
	CodeNoSuchMessage Code = "NO_SUCH_MESSAGE"

	// CodeNotAddressee indicates the caller is not the recipient of the
	// message it tried to answer.
	CodeNotAddressee Code = "NOT_ADDRESSEE"

	// CodeInvalidAmount indicates a tip amount that is not positive or
	// would overflow the running total.
	CodeInvalidAmount Code = "INVALID_AMOUNT"
)

// Error is a ledger rejection. It is terminal for the call and implies no
// state was written.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// ID is the message id the call addressed, if any.
	ID ir.MessageID

	// Caller is the identity that made the call, if relevant.
	Caller ir.Identity
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Caller != "":
		return fmt.Sprintf("%s: %s (id=%d, caller=%s)", e.Code, e.Message, e.ID, e.Caller)
	case e.ID != 0:
		return fmt.Sprintf("%s: %s (id=%d)", e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code, so errors.Is(err, ErrNotFound)
// works for errors carrying an id or caller.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNotFound      = &Error{Code: CodeNotFound, Message: "no record at id"}
	ErrNoSuchMessage = &Error{Code: CodeNoSuchMessage, Message: "reply target does not exist"}
	ErrNotAddressee  = &Error{Code: CodeNotAddressee, Message: "caller is not the recipient of the target"}
	ErrInvalidAmount = &Error{Code: CodeInvalidAmount, Message: "tip amount must be positive"}
)

func notFound(id ir.MessageID) error {
	return &Error{Code: CodeNotFound, Message: ErrNotFound.Message, ID: id}
}

func noSuchMessage(id ir.MessageID) error {
	return &Error{Code: CodeNoSuchMessage, Message: ErrNoSuchMessage.Message, ID: id}
}

func notAddressee(id ir.MessageID, caller ir.Identity) error {
	return &Error{Code: CodeNotAddressee, Message: ErrNotAddressee.Message, ID: id, Caller: caller}
}

func invalidAmount(id ir.MessageID, msg string) error {
	return &Error{Code: CodeInvalidAmount, Message: msg, ID: id}
}

// CodeOf returns the ledger error code carried by err.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) (Code, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Code, true
	}
	return "", false
}

// IsLedgerError returns true if err is a ledger rejection rather than a
// storage fault.
func IsLedgerError(err error) bool {
	_, ok := CodeOf(err)
	return ok
}

// IsNotFound returns true if err is a NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNoSuchMessage returns true if err is a NoSuchMessage error.
func IsNoSuchMessage(err error) bool {
	return errors.Is(err, ErrNoSuchMessage)
}

// IsNotAddressee returns true if err is a NotAddressee error.
func IsNotAddressee(err error) bool {
	return errors.Is(err, ErrNotAddressee)
}

// IsInvalidAmount returns true if err is an InvalidAmount error.
func IsInvalidAmount(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}
