package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateChallenge checks the grading fields of a challenge loaded from a
// backing store.
func ValidateChallenge(c Challenge) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid challenge %q: %w", c.ID, err)
	}
	return nil
}
