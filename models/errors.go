package models

import "fmt"

// ValidationReason classifies why a submitted value was rejected.
type ValidationReason string

const (
	ReasonMissing ValidationReason = "missing"
	ReasonPhone   ValidationReason = "phone"
	ReasonDigits  ValidationReason = "digits"
	ReasonTooLong ValidationReason = "too_long"
)

// ValidationError is returned when a record fails the schema rules. Nothing is written.
type ValidationError struct {
	Field  string           `json:"field"`
	Label  string           `json:"label"`
	Reason ValidationReason `json:"reason"`
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissing:
		return "complete all fields"
	case ReasonPhone:
		return fmt.Sprintf("%s must be exactly %d digits", e.Label, PhoneDigits)
	case ReasonDigits:
		return fmt.Sprintf("%s must contain digits only", e.Label)
	case ReasonTooLong:
		return fmt.Sprintf("%s is too long", e.Label)
	}
	return fmt.Sprintf("invalid value for %s", e.Label)
}
