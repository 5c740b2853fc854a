package compose

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/voltgrid/cancelflow/internal/extraction"
)

// Word-count bounds for an acceptable draft. Outside the range is
// advisory only.
const (
	minDraftWords = 30
	maxDraftWords = 150
)

var appMention = regexp.MustCompile(`(?i)\bappen?\b`)

// Validation is the outcome of checking a draft against the compliance
// rules. Only Errors make a draft non-compliant; Warnings are advisory
// for the human reviewer.
type Validation struct {
	Compliant bool     `json:"compliant"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Validate checks a composed draft against the mandatory compliance
// rules. The end-of-month policy statement is the only hard
// requirement; the human reviewer is the actual compliance gate, so
// everything else surfaces as a warning.
func Validate(draft string, lang extraction.Language, edge extraction.EdgeCase) Validation {
	t := templateFor(lang)
	lower := strings.ToLower(draft)

	var v Validation

	if edge != extraction.EdgeAlreadyCanceled && !strings.Contains(draft, t.policyPhrase) {
		v.Errors = append(v.Errors, "missing end-of-month policy statement")
	}

	if edge != extraction.EdgeNoAppAccess && edge != extraction.EdgeAlreadyCanceled && !appMention.MatchString(draft) {
		v.Warnings = append(v.Warnings, "missing self-service app mention")
	}

	if !containsAny(lower, t.politeWords) {
		v.Warnings = append(v.Warnings, "missing polite-tone marker")
	}

	if n := len(strings.Fields(draft)); n < minDraftWords || n > maxDraftWords {
		v.Warnings = append(v.Warnings, fmt.Sprintf("word count %d outside %d-%d", n, minDraftWords, maxDraftWords))
	}

	v.Compliant = len(v.Errors) == 0
	return v
}
