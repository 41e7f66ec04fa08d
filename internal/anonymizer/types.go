package anonymizer

import (
	"sort"

	"github.com/samber/lo"
)

// IdentityTable maps an original matched string to its generated
// substitute. Entries are first-seen-wins and are never replaced.
type IdentityTable map[string]string

// NewIdentityTable returns an empty table
func NewIdentityTable() IdentityTable {
	return make(IdentityTable)
}

// Resolve returns the substitute for original, calling generate and
// recording the result only the first time original is seen.
func (t IdentityTable) Resolve(original string, generate func() (string, error)) (string, error) {
	if id, ok := t[original]; ok {
		return id, nil
	}
	id, err := generate()
	if err != nil {
		return "", err
	}
	t[original] = id
	return id, nil
}

// Originals returns the table's keys in sorted order
func (t IdentityTable) Originals() []string {
	keys := lo.Keys(t)
	sort.Strings(keys)
	return keys
}

// Warning records a recovered, non-fatal problem with one match
type Warning struct {
	Offset  int    `json:"offset"`
	Match   string `json:"match"`
	Message string `json:"message"`
}

// Result is the outcome of one Engine.Run
type Result struct {
	Text     string        `json:"text"`
	Mode     Mode          `json:"mode"`
	Matches  int           `json:"matches"`
	Replaced int           `json:"replaced"`
	Lookup   IdentityTable `json:"lookup,omitempty"` // name_to_id only
	Warnings []Warning     `json:"warnings,omitempty"`
}
