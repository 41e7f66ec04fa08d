package anonymizer

import (
	"errors"
	"fmt"
)

// ErrUnsupportedMode matches any *UnsupportedModeError via errors.Is
var ErrUnsupportedMode = errors.New("unsupported mode")

// UnsupportedModeError is returned when the mode is not one of the five
// supported tokens. Nothing is produced for such a run.
type UnsupportedModeError struct {
	Mode string
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("unsupported format type: %s", e.Mode)
}

// Is lets errors.Is(err, ErrUnsupportedMode) match
func (e *UnsupportedModeError) Is(target error) bool {
	return target == ErrUnsupportedMode
}

// PatternCompilationError reports an override that the regexp package
// (or the date format translator) rejected. Err is the original error.
type PatternCompilationError struct {
	Key     string
	Pattern string
	Err     error
}

func (e *PatternCompilationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Key, e.Pattern, e.Err)
}

func (e *PatternCompilationError) Unwrap() error {
	return e.Err
}

// SubstitutionError wraps an unexpected failure while producing a
// substitute. The run is aborted and no output is returned.
type SubstitutionError struct {
	Mode   Mode
	Offset int
	Err    error
}

func (e *SubstitutionError) Error() string {
	return fmt.Sprintf("anonymization failed: %s at offset %d: %v", e.Mode, e.Offset, e.Err)
}

func (e *SubstitutionError) Unwrap() error {
	return e.Err
}
