package chat

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidJSON      = errors.New("request body is not a JSON object")
	ErrMissingMessages  = errors.New("messages field is missing")
	ErrMessagesNotArray = errors.New("messages field is not an array")
	ErrInvalidTurn      = errors.New("invalid message")
)

// TurnError reports a problem with a single element of the messages array.
type TurnError struct {
	Index int
	Field string
	Err   error
}

func (e *TurnError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("messages[%d]: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("messages[%d].%s: %v", e.Index, e.Field, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}
