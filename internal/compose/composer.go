// Package compose assembles policy-compliant draft replies from
// extraction results. Drafts are deterministic template assemblies:
// the (language, edge case) pair selects the body, retrieved context
// snippets only adjust tone and payment guidance.
package compose

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/voltgrid/cancelflow/internal/extraction"
	"github.com/voltgrid/cancelflow/internal/sanitize"
)

// Version tags every draft produced by this template generation.
const Version = "templates/v3"

// Composer builds draft replies. Safe for concurrent use.
type Composer struct {
	log *zap.Logger
}

// New creates a Composer.
func New(log *zap.Logger) *Composer {
	return &Composer{log: log.Named("compose")}
}

// Compose builds a draft reply for the given extraction result.
// Snippets are short texts retrieved from past tickets; zero snippets
// is normal and yields the plain template. The returned draft never
// contains text matching personal-data patterns.
func (c *Composer) Compose(res extraction.Result, snippets []string) string {
	t := templateFor(res.Language)

	body := t.standardBody
	if b, ok := t.edgeBodies[res.EdgeCase]; ok {
		body = b
	}

	context := strings.ToLower(strings.Join(snippets, "\n"))

	// Tone adaptation: mirror an apologetic or empathetic register found
	// in similar past tickets, unless the template already carries it.
	ack := t.ackNeutral
	if containsAny(context, t.apologyWords) && !containsAny(strings.ToLower(ack+" "+body), t.apologyWords) {
		ack = t.ackApologetic
	}

	parts := []string{t.greeting, ack}
	if containsAny(context, t.empathyWords) && !containsAny(strings.ToLower(ack+" "+body), t.empathyWords) {
		parts = append(parts, t.empathy)
	}
	parts = append(parts, body)

	if res.MoveDate != nil {
		parts = append(parts, fmt.Sprintf(t.moveDateFormat, formatDate(*res.MoveDate, t, res.Language)))
	}

	if res.HasPaymentIssue {
		parts = append(parts, paymentGuidance(t, snippets))
	}

	if res.EdgeCase != extraction.EdgeAlreadyCanceled {
		parts = append(parts, t.policyPhrase)
	}
	if res.EdgeCase != extraction.EdgeNoAppAccess {
		parts = append(parts, t.appPhrase)
	}

	parts = append(parts, t.closing)
	draft := strings.Join(parts, "\n\n")

	// Masking happens before extraction; this is the last line of
	// defense, not masking itself.
	if sanitize.ContainsPII(draft) {
		c.log.Warn("composed draft matched a personal-data pattern, stripping",
			zap.String("language", string(res.Language)),
			zap.String("edge_case", string(res.EdgeCase)))
		draft = sanitize.Strip(draft)
	}

	return draft
}

// paymentGuidance derives a payment-specific sentence from the first
// retrieved snippet. With no snippet or no recognizable pattern the
// generic clarification sentence is used.
func paymentGuidance(t localeTemplate, snippets []string) string {
	if len(snippets) == 0 {
		return t.paymentGeneric
	}
	first := strings.ToLower(snippets[0])
	switch {
	case containsAny(first, doubleChargeWords):
		return t.paymentDouble
	case containsAny(first, refundWords):
		return t.paymentRefund
	case containsAny(first, billingErrorWords):
		return t.paymentBilling
	}
	return t.paymentGeneric
}

// Payment-pattern words span all supported locales; snippets from past
// tickets are not guaranteed to match the customer's language.
var (
	doubleChargeWords = []string{"double", "twice", "duplicate", "dobbel", "to ganger", "doppelt", "zweimal"}
	refundWords       = []string{"refund", "refusjon", "tilbakebetal", "rückerstatt", "erstatt"}
	billingErrorWords = []string{"billing error", "incorrect invoice", "wrong amount", "fakturafeil", "faktureringsfeil", "feil på faktura", "abrechnungsfehler", "falsche rechnung"}
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
