package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/tubevault/tubevault/internal/models"
	"github.com/tubevault/tubevault/internal/pathname"
)

var structValidator = validator.New()

// ValidateSource checks a Source's struct tags (`validate:"required"` on
// Key/DisplayName/Directory/MediaTemplate, QualityPolicy's own tagged
// fields) with go-playground/validator/v10, then separately confirms
// MediaTemplate renders to a non-empty string against the example
// placeholder dict — spec.md §8's "changing the template is rejected if
// rendering fails" invariant, which a struct tag alone cannot express.
func ValidateSource(src *models.Source) error {
	if err := structValidator.Struct(src); err != nil {
		return fmt.Errorf("config: invalid source: %w", err)
	}
	if err := pathname.ValidateTemplate(src.MediaTemplate, src.ExampleMediaFormatDict()); err != nil {
		return fmt.Errorf("config: invalid media_template: %w", err)
	}
	return nil
}
