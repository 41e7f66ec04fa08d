package anonymizer

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/logger"
)

// replaceFunc produces the substitute for one match. keep=true leaves the
// match untouched.
type replaceFunc func(match string, offset int) (substitute string, keep bool, err error)

// Engine anonymizes one text with one mode. Engines are single-use and not
// safe for concurrent use.
type Engine struct {
	text   string
	mode   Mode
	rules  *Rules
	gen    Generator
	table  IdentityTable
	logger *logger.Logger

	warnings []Warning
}

// Option customizes an Engine
type Option func(*Engine)

// WithGenerator sets the substitute value source
func WithGenerator(g Generator) Option {
	return func(e *Engine) { e.gen = g }
}

// WithLogger sets the engine logger
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIdentityTable seeds name_to_id with an existing table, which the run
// extends in place. Use it to keep identities stable across several texts.
func WithIdentityTable(t IdentityTable) Option {
	return func(e *Engine) { e.table = t }
}

// New creates an engine. The mode is not validated until Run.
func New(text string, mode Mode, rules *Rules, opts ...Option) *Engine {
	e := &Engine{
		text:  text,
		mode:  mode,
		rules: rules,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.rules == nil {
		e.rules = DefaultRules()
	}
	if e.gen == nil {
		e.gen = NewFakeGenerator(0)
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}
	return e
}

// Run applies the mode's substitution policy over the whole text
func (e *Engine) Run() (*Result, error) {
	replace, err := e.policy()
	if err != nil {
		e.logger.Error("Unsupported format type", zap.String("mode", string(e.mode)))
		return nil, err
	}

	pattern := e.rules.Pattern(e.mode)
	start := time.Now()

	out, matches, replaced, err := substitute(pattern, e.text, replace)
	if err != nil {
		e.logger.Error("Anonymization failed",
			zap.String("mode", string(e.mode)),
			zap.Error(err),
		)
		return nil, err
	}

	result := &Result{
		Text:     out,
		Mode:     e.mode,
		Matches:  matches,
		Replaced: replaced,
		Warnings: e.warnings,
	}
	if e.mode == ModeNameToID {
		result.Lookup = e.table
	}

	e.logger.Debug("Anonymization pass completed",
		zap.String("mode", string(e.mode)),
		zap.Int("matches", matches),
		zap.Int("replaced", replaced),
		zap.Int("warnings", len(e.warnings)),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// policy selects the per-match replacement for the engine's mode
func (e *Engine) policy() (replaceFunc, error) {
	switch e.mode {
	case ModeDateToTimestamp:
		return e.dateToTimestamp, nil
	case ModeNameToID:
		if e.table == nil {
			e.table = NewIdentityTable()
		}
		return e.nameToID, nil
	case ModeEmailToFake:
		return e.fake(e.gen.Email), nil
	case ModePhoneToFake:
		return e.fake(e.gen.Phone), nil
	case ModeAddressToFake:
		return e.fake(e.gen.Address), nil
	default:
		return nil, &UnsupportedModeError{Mode: string(e.mode)}
	}
}

func (e *Engine) dateToTimestamp(match string, offset int) (string, bool, error) {
	t, err := e.rules.ParseDate(match)
	if err != nil {
		e.logger.Warn("Invalid date format encountered",
			zap.String("date", match),
			zap.String("format", e.rules.DateFormat()),
			zap.Int("offset", offset),
		)
		e.warnings = append(e.warnings, Warning{
			Offset:  offset,
			Match:   match,
			Message: "date does not match format " + e.rules.DateFormat(),
		})
		return "", true, nil
	}
	return strconv.FormatInt(t.Unix(), 10), false, nil
}

func (e *Engine) nameToID(match string, offset int) (string, bool, error) {
	id, err := e.table.Resolve(match, e.gen.ID)
	if err != nil {
		return "", false, &SubstitutionError{Mode: e.mode, Offset: offset, Err: err}
	}
	return id, false, nil
}

func (e *Engine) fake(generate func() (string, error)) replaceFunc {
	return func(_ string, offset int) (string, bool, error) {
		value, err := generate()
		if err != nil {
			return "", false, &SubstitutionError{Mode: e.mode, Offset: offset, Err: err}
		}
		return value, false, nil
	}
}

// substitute replaces every non-overlapping leftmost match of pattern in a
// single pass. Substituted text is never rescanned.
func substitute(pattern *regexp.Regexp, text string, replace replaceFunc) (string, int, int, error) {
	locs := pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, 0, 0, nil
	}

	var b strings.Builder
	b.Grow(len(text))

	last, replaced := 0, 0
	for _, loc := range locs {
		match := text[loc[0]:loc[1]]
		b.WriteString(text[last:loc[0]])

		sub, keep, err := replace(match, loc[0])
		if err != nil {
			return "", 0, 0, err
		}
		if keep {
			b.WriteString(match)
		} else {
			b.WriteString(sub)
			replaced++
		}
		last = loc[1]
	}
	b.WriteString(text[last:])

	return b.String(), len(locs), replaced, nil
}
