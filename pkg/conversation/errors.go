package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrStructural marks protocol violations caused by wrong wiring. They are never recovered from.
	ErrStructural = errors.New("conversation: structural protocol violation")

	ErrAssistantFirst       = fmt.Errorf("%w: assistant message cannot start a conversation", ErrStructural)
	ErrUnpairedFunctionCall = fmt.Errorf("%w: function call without paired result", ErrStructural)
	ErrOrphanFunctionResult = fmt.Errorf("%w: function result without preceding call", ErrStructural)
	ErrLastMessageNotUser   = fmt.Errorf("%w: last message must be from the user", ErrStructural)
	ErrEmptyHistory         = fmt.Errorf("%w: empty history", ErrStructural)
)

// ValidationError reports a model function call whose arguments do not match
// the offered schema. It is recoverable at event granularity.
type ValidationError struct {
	Function  string
	Arguments string
	Reason    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("function call %s failed validation: %v", e.Function, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
