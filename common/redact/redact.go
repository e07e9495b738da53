// Package redact strips configured secrets from text before it is logged.
package redact

import "strings"

const placeholder = "[REDACTED]"

// minLen keeps very short values from masking ordinary words.
const minLen = 4

// Redactor replaces a fixed set of secret values.
type Redactor struct {
	r *strings.Replacer
}

// New returns a Redactor for the given secrets. Empty and short values are
// ignored.
func New(secrets ...string) *Redactor {
	var pairs []string
	for _, s := range secrets {
		if len(s) < minLen {
			continue
		}
		pairs = append(pairs, s, placeholder)
	}
	if len(pairs) == 0 {
		return &Redactor{}
	}
	return &Redactor{r: strings.NewReplacer(pairs...)}
}

// String returns s with every secret replaced. A nil Redactor returns s.
func (x *Redactor) String(s string) string {
	if x == nil || x.r == nil {
		return s
	}
	return x.r.Replace(s)
}
