package formula

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty             = errors.New("empty formula")
	ErrSyntax            = errors.New("syntax error")
	ErrDisabledOperator  = errors.New("operator not allowed")
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrUnknownFunction   = errors.New("unknown function")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrNonFinite         = errors.New("non-finite result")
	ErrBudgetExceeded    = errors.New("evaluation budget exceeded")
	ErrInternal          = errors.New("internal evaluator error")
)

// Error locates a failure inside the formula source. Pos is a byte offset.
type Error struct {
	Kind error
	Pos  int
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%v at offset %d", e.Kind, e.Pos)
	}
	return fmt.Sprintf("%v at offset %d: %s", e.Kind, e.Pos, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func errorf(kind error, pos int, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
