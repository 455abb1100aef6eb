package serrors

import "fmt"

// Base is a coded error. Code is a stable machine-readable identifier,
// Message a human-readable default, TrKey an optional translation key for
// the presentation layer.
type Base struct {
	Code    string
	Message string
	TrKey   string
}

func (e *Base) Error() string {
	return e.Message
}

func NewError(code, message, trKey string) *Base {
	return &Base{
		Code:    code,
		Message: message,
		TrKey:   trKey,
	}
}

// Wrap attaches a coded sentinel to an underlying cause so callers can match
// with errors.Is while keeping the original error text.
func Wrap(sentinel *Base, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}
