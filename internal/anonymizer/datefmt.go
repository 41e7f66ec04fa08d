package anonymizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// directive describes how one strftime directive is matched in the input
// and handed to time.Parse
type directive struct {
	pattern string
	layout  string
	width   int // numeric captures are zero-padded to this width
}

var strftimeDirectives = map[byte]directive{
	'Y': {pattern: `\d{4}`, layout: "2006"},
	'y': {pattern: `\d{2}`, layout: "06"},
	'm': {pattern: `\d{1,2}`, layout: "01", width: 2},
	'd': {pattern: `\d{1,2}`, layout: "02", width: 2},
	'e': {pattern: ` ?\d{1,2}`, layout: "02", width: 2},
	'H': {pattern: `\d{1,2}`, layout: "15", width: 2},
	'I': {pattern: `\d{1,2}`, layout: "03", width: 2},
	'M': {pattern: `\d{1,2}`, layout: "04", width: 2},
	'S': {pattern: `\d{1,2}`, layout: "05", width: 2},
	'p': {pattern: `am|pm`, layout: "PM"},
	'b': {pattern: `[a-z]{3}`, layout: "Jan"},
	'h': {pattern: `[a-z]{3}`, layout: "Jan"},
	'B': {pattern: `[a-z]+`, layout: "January"},
	'a': {pattern: `[a-z]{3}`, layout: "Mon"},
	'A': {pattern: `[a-z]+`, layout: "Monday"},
	'j': {pattern: `\d{1,3}`, layout: "002", width: 3},
	'z': {pattern: `[+-]\d{2}:?\d{2}|z`, layout: "-0700"},
	'Z': {pattern: `[a-z]+`},
}

// dateFormat parses dates written in a strftime-style format. Directive
// values are captured with a regular expression built from the format and
// only those values reach time.Parse, so literal text such as "T12:00" is
// never read as a Go layout token.
type dateFormat struct {
	format     string
	re         *regexp.Regexp
	directives []byte
	layout     string
}

// compileDateFormat validates format and prepares its matcher. Unknown
// directives are rejected here rather than at parse time.
func compileDateFormat(format string) (*dateFormat, error) {
	var (
		expr       strings.Builder
		literal    strings.Builder
		directives []byte
		layouts    []string
		hasYear    bool
	)

	flushLiteral := func() {
		for _, field := range splitSpace(literal.String()) {
			if field == "" {
				expr.WriteString(`\s+`)
				continue
			}
			expr.WriteString(regexp.QuoteMeta(field))
		}
		literal.Reset()
	}

	expr.WriteString(`(?i)^`)
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			literal.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return nil, fmt.Errorf("dangling %% at end of format")
		}
		i++
		if format[i] == '%' {
			literal.WriteByte('%')
			continue
		}

		d, ok := strftimeDirectives[format[i]]
		if !ok {
			return nil, fmt.Errorf("unsupported directive %%%c", format[i])
		}
		flushLiteral()
		expr.WriteString("(" + d.pattern + ")")
		directives = append(directives, format[i])
		if d.layout != "" {
			layouts = append(layouts, d.layout)
		}
		if format[i] == 'Y' || format[i] == 'y' {
			hasYear = true
		}
	}
	flushLiteral()
	expr.WriteString(`$`)

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, err
	}

	// Dates without a year land in 1900, as with C strptime
	if !hasYear {
		layouts = append(layouts, "2006")
	}

	return &dateFormat{
		format:     format,
		re:         re,
		directives: directives,
		layout:     strings.Join(layouts, " "),
	}, nil
}

// splitSpace splits s around whitespace runs, leaving an empty element
// where each run was
func splitSpace(s string) []string {
	var (
		parts []string
		cur   strings.Builder
		space bool
	)
	for _, r := range s {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		switch {
		case isSpace && !space:
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
			parts = append(parts, "")
			space = true
		case isSpace:
		default:
			cur.WriteRune(r)
			space = false
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

// parse interprets value in UTC
func (f *dateFormat) parse(value string) (time.Time, error) {
	m := f.re.FindStringSubmatch(value)
	if m == nil {
		return time.Time{}, fmt.Errorf("%q does not match format %q", value, f.format)
	}

	values := make([]string, 0, len(f.directives)+1)
	hasYear := false
	for i, dir := range f.directives {
		v := strings.TrimSpace(m[i+1])
		switch dir {
		case 'Z':
			if !strings.EqualFold(v, "UTC") && !strings.EqualFold(v, "GMT") {
				return time.Time{}, fmt.Errorf("unknown time zone name %q", v)
			}
			continue
		case 'z':
			v = strings.ReplaceAll(v, ":", "")
			if strings.EqualFold(v, "z") {
				v = "+0000"
			}
		case 'p':
			v = strings.ToUpper(v)
		case 'Y', 'y':
			hasYear = true
		}
		if w := strftimeDirectives[dir].width; len(v) < w {
			v = strings.Repeat("0", w-len(v)) + v
		}
		values = append(values, v)
	}
	if !hasYear {
		values = append(values, "1900")
	}

	return time.ParseInLocation(f.layout, strings.Join(values, " "), time.UTC)
}
