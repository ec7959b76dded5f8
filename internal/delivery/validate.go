package delivery

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateSettings checks a settings record read from the store before it is
// allowed anywhere near a claim.
func ValidateSettings(s *models.CheckInSettings) error {
	if s == nil {
		return fmt.Errorf("%w: nil settings", ErrInvalidSettings)
	}
	if len(s.Recipients) == 0 {
		return ErrNoRecipients
	}
	if math.IsNaN(s.CheckInFrequency) || math.IsInf(s.CheckInFrequency, 0) {
		return fmt.Errorf("%w: check_in_frequency %v", ErrInvalidSettings, s.CheckInFrequency)
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, describe(err))
	}
	seen := make(map[string]struct{}, len(s.Recipients))
	for _, r := range s.Recipients {
		key := strings.ToLower(strings.TrimSpace(r.Email))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate recipient %s", ErrInvalidSettings, r.Email)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
