package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedLevels is the set of valid log_level values.
var recognizedLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
}

// maxIncludeWorkers bounds include_workers.
const maxIncludeWorkers = 64

// Validate checks a Config for invalid values.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if !recognizedLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("unrecognized level %q", cfg.LogLevel),
		})
	}

	if cfg.IncludeWorkers < 1 || cfg.IncludeWorkers > maxIncludeWorkers {
		errs = append(errs, ValidationError{
			Field:   "include_workers",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", maxIncludeWorkers, cfg.IncludeWorkers),
		})
	}

	if cfg.History.Enabled && cfg.History.Path == "" {
		errs = append(errs, ValidationError{Field: "history.path", Message: "is required when history is enabled"})
	}

	return errs
}
