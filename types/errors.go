package types

import (
	"errors"
	"fmt"
)

// ErrPreconditionViolation is the parent of every error the ledger returns
// for a call it refused to execute. Retrying such a call with the same
// inputs fails the same way.
var ErrPreconditionViolation = errors.New("precondition violation")

var (
	ErrIncorrectPaymentAmount = fmt.Errorf("%w: incorrect payment amount", ErrPreconditionViolation)
	ErrAlreadyRegistered      = fmt.Errorf("%w: address already registered", ErrPreconditionViolation)
	ErrUnauthorized           = fmt.Errorf("%w: only owner can withdraw funds", ErrPreconditionViolation)
)

var (
	// ErrTransport marks failures to reach the ledger (gateway unreachable,
	// subscription dropped). They are recovered by retrying.
	ErrTransport = errors.New("transport failure")

	// ErrUserRejected is returned when the account holder declines to sign.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrInvalidTransaction is returned for a transaction that cannot be
	// executed at all: bad signature, foreign chain id or wrong call kind.
	ErrInvalidTransaction = errors.New("invalid transaction")
)

type Kind int

const (
	KindNone Kind = iota
	KindPrecondition
	KindTransport
	KindCancelled
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPrecondition:
		return "precondition"
	case KindTransport:
		return "transport"
	case KindCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// Classify maps an error onto the failure taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPreconditionViolation):
		return KindPrecondition
	case errors.Is(err, ErrUserRejected):
		return KindCancelled
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindOther
	}
}

var codes = map[string]error{
	"incorrect_payment_amount": ErrIncorrectPaymentAmount,
	"already_registered":       ErrAlreadyRegistered,
	"unauthorized":             ErrUnauthorized,
}

// Code returns the stable wire code of a precondition error, or "" if err
// is not one.
func Code(err error) string {
	for code, target := range codes {
		if errors.Is(err, target) {
			return code
		}
	}
	return ""
}

// FromCode is the inverse of Code. Unknown codes map to nil.
func FromCode(code string) error {
	return codes[code]
}
