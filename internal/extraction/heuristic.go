package extraction

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// HeuristicExtractor performs pure lexicon-based signal extraction.
// Extract has no failure mode: unknown input yields a best-effort
// Result with reason "unknown" and is_cancellation false.
type HeuristicExtractor struct {
	// now supplies the reference time for year inference in date
	// extraction. Overridable in tests.
	now func() time.Time
}

// NewHeuristicExtractor creates a heuristic extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{now: time.Now}
}

// Extract scans the raw email text and returns a best-effort Result.
// The text is split into subject and body when a recognizable subject
// line exists; both parts are scanned independently.
func (h *HeuristicExtractor) Extract(rawText string) Result {
	subject, body := splitSubject(rawText)
	lowerSubject := strings.ToLower(subject)
	lowerBody := strings.ToLower(body)
	lowerAll := strings.ToLower(rawText)

	lang := detectLanguage(lowerAll)
	lex := lexicons[lang]

	strong := scanAny(lex.strongPhrases, lowerSubject, lowerBody)
	verbs := scanAny(lex.cancelVerbs, lowerSubject, lowerBody)
	nouns := scanAny(lex.cancelNouns, lowerSubject, lowerBody)
	subNouns := scanAny(lex.subscriptionNouns, lowerSubject, lowerBody)
	relocation := scanAny(lex.relocationNouns, lowerSubject, lowerBody)

	weakCount := 0
	for _, fired := range []bool{verbs, nouns, subNouns, relocation} {
		if fired {
			weakCount++
		}
	}
	totalCount := weakCount
	if strong {
		totalCount++
	}

	guarded := matchesAny(lowerAll, guardPhrases)

	// Graduated confidence, not a single keyword hit: a strong phrase
	// confirms intent alone; otherwise two weak categories must
	// co-occur, or three signal categories in total. The guard
	// suppresses everything short of a strong phrase.
	intent := strong || weakCount >= 2 || totalCount >= 3
	if guarded && !strong {
		intent = false
	}

	moveDate := extractDate(rawText, lex, h.now())

	hasPayment, paymentConcerns := scanPayment(lowerAll)
	edge := detectEdgeCase(lowerAll)

	reason := ReasonUnknown
	if intent {
		switch {
		case relocation || moveDate != nil:
			reason = ReasonMoving
		case hasPayment:
			reason = ReasonPaymentIssue
		default:
			reason = ReasonOther
		}
	}

	urgency := classifyUrgency(lowerAll, edge, moveDate, h.now())

	return Result{
		SchemaVersion:    SchemaVersion,
		IsCancellation:   intent,
		Reason:           reason,
		MoveDate:         moveDate,
		Language:         lang,
		EdgeCase:         edge,
		Urgency:          urgency,
		CustomerConcerns: scanConcerns(lowerAll),
		PolicyRisks:      scanRisks(lowerAll),
		HasPaymentIssue:  hasPayment,
		PaymentConcerns:  paymentConcerns,
		Confidence: ConfidenceFactors{
			ClearIntent:         intent,
			CompleteInformation: moveDate != nil || relocation,
			StandardCase:        intent && edge == EdgeNone && !hasPayment,
		},
	}
}

// DetectEdgeCase runs only the edge-case lexicon scan over the text.
// The router uses it to backfill edge cases the inference extractor
// missed.
func (h *HeuristicExtractor) DetectEdgeCase(rawText string) EdgeCase {
	return detectEdgeCase(strings.ToLower(rawText))
}

// subjectPrefixes recognize a subject line at the start of the text.
var subjectPrefixes = []string{"subject:", "emne:", "betreff:", "re:", "sv:", "aw:", "fwd:"}

// splitSubject separates a leading subject line from the body. When no
// recognizable subject prefix exists, the subject is empty and the
// whole text is treated as body.
func splitSubject(rawText string) (subject, body string) {
	trimmed := strings.TrimLeft(rawText, " \t\r\n")
	firstLine, rest, found := strings.Cut(trimmed, "\n")
	if !found {
		firstLine, rest = trimmed, ""
	}
	lower := strings.ToLower(firstLine)
	for _, prefix := range subjectPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(firstLine[len(prefix):]), rest
		}
	}
	return "", rawText
}

// detectLanguage counts locale marker words and picks the highest
// count. Ties go to the primary locale.
func detectLanguage(lowerText string) Language {
	words := fieldsLetters(lowerText)

	best := LangNorwegian
	bestCount := -1
	// Deterministic order with the primary locale first so it wins ties.
	for _, lang := range []Language{LangNorwegian, LangEnglish, LangGerman} {
		count := 0
		for _, m := range lexicons[lang].markers {
			if _, ok := words[m]; ok {
				count++
			}
		}
		if count > bestCount {
			best = lang
			bestCount = count
		}
	}
	return best
}

// fieldsLetters splits lowered text into a word set.
func fieldsLetters(lowerText string) map[string]struct{} {
	fields := strings.FieldsFunc(lowerText, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// containsPhrase reports whether phrase occurs in lowered text at word
// boundaries. Substring hits inside longer words ("cancel" inside
// "cancellation") do not count.
func containsPhrase(lowerText, phrase string) bool {
	for start := 0; ; {
		idx := strings.Index(lowerText[start:], phrase)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(phrase)
		if boundaryBefore(lowerText, idx) && boundaryAfter(lowerText, end) {
			return true
		}
		start = idx + 1
	}
}

func boundaryBefore(s string, idx int) bool {
	if idx == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:idx])
	return !unicode.IsLetter(r)
}

func boundaryAfter(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[end:])
	return !unicode.IsLetter(r)
}

// matchesAny reports whether any phrase matches the text.
func matchesAny(lowerText string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(lowerText, p) {
			return true
		}
	}
	return false
}

// scanAny matches phrases against subject and body independently.
func scanAny(phrases []string, lowerSubject, lowerBody string) bool {
	return (lowerSubject != "" && matchesAny(lowerSubject, phrases)) || matchesAny(lowerBody, phrases)
}

// scanPayment checks the payment lexicon and collects concern tags.
func scanPayment(lowerText string) (bool, []string) {
	var tags []string
	for _, entry := range paymentLexicon {
		if matchesAny(lowerText, entry.phrases) {
			tags = append(tags, entry.tag)
		}
	}
	return len(tags) > 0, tags
}

// detectEdgeCase returns the first matching category in the fixed
// priority order of edgeLexicon.
func detectEdgeCase(lowerText string) EdgeCase {
	for _, entry := range edgeLexicon {
		if matchesAny(lowerText, entry.phrases) {
			return entry.edge
		}
	}
	return EdgeNone
}

// scanConcerns collects customer-concern topic tags.
func scanConcerns(lowerText string) []string {
	var tags []string
	for _, entry := range concernLexicon {
		if matchesAny(lowerText, entry.phrases) {
			tags = append(tags, entry.tag)
		}
	}
	return tags
}

// scanRisks collects policy-risk warnings.
func scanRisks(lowerText string) []string {
	var warnings []string
	for _, entry := range riskLexicon {
		if matchesAny(lowerText, entry.phrases) {
			warnings = append(warnings, entry.warning)
		}
	}
	return warnings
}

// classifyUrgency derives the urgency from explicit phrases, the edge
// case, and how far out the move date is.
func classifyUrgency(lowerText string, edge EdgeCase, moveDate *time.Time, now time.Time) Urgency {
	if edge == EdgeImmediateTermination || matchesAny(lowerText, urgentPhrases) {
		return UrgencyImmediate
	}
	if moveDate != nil {
		if moveDate.Sub(now) <= 14*24*time.Hour {
			return UrgencyImmediate
		}
		return UrgencyFuture
	}
	if edge == EdgeFutureMoveDate {
		return UrgencyFuture
	}
	return UrgencyUnclear
}
