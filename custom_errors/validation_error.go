package custom_errors

import (
	"errors"
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

type ValidationError struct {
	Errors []error `json:"errors"`
}

func (c *ValidationError) Add(err error) {
	c.Errors = append(c.Errors, err)
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

func (c *ValidationError) Error() string {
	if len(c.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", errors.Join(c.Errors...))
}

// Err returns the collected errors classified as ErrBadRequest, or nil when empty.
func (c *ValidationError) Err() error {
	if !c.HasError() {
		return nil
	}
	return crdb.Mark(c, ErrBadRequest)
}
