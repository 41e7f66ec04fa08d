package anonymizer

import (
	"fmt"
	"regexp"
	"time"

	"github.com/raaihank/text-anonymizer/internal/config"
)

// Built-in detection patterns. They are intentionally coarse heuristics.
const (
	DefaultDateRegex    = `\d{4}-\d{2}-\d{2}`
	DefaultNameRegex    = `\b[A-Z][a-z]+\s[A-Z][a-z]+\b`
	DefaultEmailRegex   = `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`
	DefaultPhoneRegex   = `\b\d{3}[-.\s]??\d{3}[-.\s]??\d{4}\b`
	DefaultAddressRegex = `\d+\s[A-Za-z]+\s[A-Za-z]+`

	DefaultDateFormat = "%Y-%m-%d"
)

// DetectionRule is the compiled detection pattern for one mode
type DetectionRule struct {
	Mode       Mode
	Key        string // configuration key that overrides it
	Pattern    *regexp.Regexp
	Overridden bool
}

// Rules holds the compiled patterns for all five modes plus the date
// format. It is immutable once built and safe to share between engines.
type Rules struct {
	rules      map[Mode]DetectionRule
	dateFormat *dateFormat
}

// CompileRules compiles every mode's pattern up front, whether or not that
// mode will be used, so configuration mistakes surface before any text is
// processed.
func CompileRules(cfg config.PatternConfig) (*Rules, error) {
	specs := []struct {
		mode     Mode
		key      string
		override string
		fallback string
	}{
		{ModeDateToTimestamp, "date_regex", cfg.DateRegex, DefaultDateRegex},
		{ModeNameToID, "name_regex", cfg.NameRegex, DefaultNameRegex},
		{ModeEmailToFake, "email_regex", cfg.EmailRegex, DefaultEmailRegex},
		{ModePhoneToFake, "phone_regex", cfg.PhoneRegex, DefaultPhoneRegex},
		{ModeAddressToFake, "address_regex", cfg.AddressRegex, DefaultAddressRegex},
	}

	r := &Rules{rules: make(map[Mode]DetectionRule, len(specs))}

	for _, s := range specs {
		source := s.fallback
		if s.override != "" {
			source = s.override
		}

		re, err := regexp.Compile(source)
		if err != nil {
			return nil, &PatternCompilationError{Key: s.key, Pattern: source, Err: err}
		}

		r.rules[s.mode] = DetectionRule{
			Mode:       s.mode,
			Key:        s.key,
			Pattern:    re,
			Overridden: s.override != "",
		}
	}

	format := DefaultDateFormat
	if cfg.DateFormat != "" {
		format = cfg.DateFormat
	}

	df, err := compileDateFormat(format)
	if err != nil {
		return nil, &PatternCompilationError{Key: "date_format", Pattern: format, Err: err}
	}
	r.dateFormat = df

	return r, nil
}

// DefaultRules returns the built-in rule set
func DefaultRules() *Rules {
	r, err := CompileRules(config.PatternConfig{})
	if err != nil {
		panic(fmt.Sprintf("anonymizer: built-in rules do not compile: %v", err))
	}
	return r
}

// Rule returns the detection rule for mode
func (r *Rules) Rule(mode Mode) (DetectionRule, bool) {
	rule, ok := r.rules[mode]
	return rule, ok
}

// Pattern returns the detection pattern for mode, or nil for an unknown mode
func (r *Rules) Pattern(mode Mode) *regexp.Regexp {
	return r.rules[mode].Pattern
}

// DateFormat returns the strftime-style date format in effect
func (r *Rules) DateFormat() string {
	return r.dateFormat.format
}

// ParseDate parses value with the configured date format in UTC
func (r *Rules) ParseDate(value string) (time.Time, error) {
	return r.dateFormat.parse(value)
}
