package account

import (
	"errors"
	"fmt"
)

var (
	// ErrIllegalTransition is returned when a status change would move an
	// attempt backwards or out of a terminal state.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrIdentifierRequired is returned when Completed is requested without
	// an identifier.
	ErrIdentifierRequired = errors.New("completed status requires an identifier")
)

// ConfigurationError reports an invalid batch configuration. It is fatal and
// raised before any attempt starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
