// Package command contains write operations (CQRS - Commands).
// Every handler runs in exactly one unit of work; recorded events are
// published only after it commits.
package command

import (
	"fmt"

	"github.com/satriyop/enteraksi/internal/domain/shared"
)

// requireID validates a required identifier field of a command.
func requireID(op, field, value string) error {
	if value == "" {
		return shared.NewDomainError("command", op, shared.ErrValidation, field+" is required")
	}
	if err := shared.ValidateID(value); err != nil {
		return shared.WrapError("command", op, shared.ErrInvalidID, fmt.Sprintf("invalid %s", field), err)
	}
	return nil
}

// optionalID validates an identifier field that may be empty.
func optionalID(op, field, value string) error {
	if value == "" {
		return nil
	}
	return requireID(op, field, value)
}
