package anonymizer

import "strings"

// Mode selects both the detection pattern and the substitution policy
type Mode string

const (
	// ModeDateToTimestamp replaces dates with Unix timestamps
	ModeDateToTimestamp Mode = "date_to_timestamp"
	// ModeNameToID replaces "First Last" names with stable random identifiers
	ModeNameToID Mode = "name_to_id"
	// ModeEmailToFake replaces email addresses with fake ones
	ModeEmailToFake Mode = "email_to_fake"
	// ModePhoneToFake replaces phone numbers with fake ones
	ModePhoneToFake Mode = "phone_to_fake"
	// ModeAddressToFake replaces street addresses with fake ones
	ModeAddressToFake Mode = "address_to_fake"
)

var modes = []Mode{
	ModeDateToTimestamp,
	ModeNameToID,
	ModeEmailToFake,
	ModePhoneToFake,
	ModeAddressToFake,
}

// Modes returns every supported mode in a stable order
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

// ModeNames returns the mode tokens as strings, for flag help and API docs
func ModeNames() []string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return names
}

// Valid reports whether m is one of the five supported modes
func (m Mode) Valid() bool {
	for _, known := range modes {
		if m == known {
			return true
		}
	}
	return false
}

func (m Mode) String() string {
	return string(m)
}

// ParseMode validates a mode token. Surrounding whitespace is ignored but
// the token is otherwise matched exactly.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.TrimSpace(s))
	if !m.Valid() {
		return "", &UnsupportedModeError{Mode: s}
	}
	return m, nil
}
