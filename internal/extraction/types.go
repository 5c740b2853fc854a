package extraction

import (
	"context"
	"time"
)

// Language identifies a supported customer locale.
type Language string

// Supported locales. Norwegian is the primary market and wins ties in
// language detection.
const (
	LangNorwegian Language = "no"
	LangEnglish   Language = "en"
	LangGerman    Language = "de"
)

// Reason classifies why the customer wants to cancel.
type Reason string

const (
	ReasonMoving       Reason = "moving"
	ReasonPaymentIssue Reason = "payment_issue"
	ReasonOther        Reason = "other"
	ReasonUnknown      Reason = "unknown"
)

// EdgeCase tags scenarios that deviate from the standard reply template.
type EdgeCase string

const (
	EdgeNone                 EdgeCase = "none"
	EdgeAlreadyCanceled      EdgeCase = "already_canceled"
	EdgeNoAppAccess          EdgeCase = "no_app_access"
	EdgePaymentDispute       EdgeCase = "payment_dispute"
	EdgeCorporateAccount     EdgeCase = "corporate_account"
	EdgeSameieConcern        EdgeCase = "sameie_concern"
	EdgeImmediateTermination EdgeCase = "immediate_termination"
	EdgeFutureMoveDate       EdgeCase = "future_move_date"
)

// Urgency classifies how soon the customer expects the cancellation.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyFuture    Urgency = "future"
	UrgencyUnclear   Urgency = "unclear"
)

// ConfidenceFactors are derived booleans describing how trustworthy the
// extraction is. The router escalates on weak factors.
type ConfidenceFactors struct {
	ClearIntent         bool `json:"clear_intent"`
	CompleteInformation bool `json:"complete_information"`
	StandardCase        bool `json:"standard_case"`
}

// SchemaVersion of the Result shape. Earlier processing generations
// used diverging shapes for the same concept; they are collapsed into
// this single versioned structure.
const SchemaVersion = 3

// Result is the extraction outcome for one email. It is a value
// object: regenerated, never mutated, when escalation occurs.
type Result struct {
	SchemaVersion    int               `json:"schema_version"`
	IsCancellation   bool              `json:"is_cancellation"`
	Reason           Reason            `json:"reason"`
	MoveDate         *time.Time        `json:"move_date,omitempty"`
	Language         Language          `json:"language"`
	EdgeCase         EdgeCase          `json:"edge_case"`
	Urgency          Urgency           `json:"urgency"`
	CustomerConcerns []string          `json:"customer_concerns,omitempty"`
	PolicyRisks      []string          `json:"policy_risks,omitempty"`
	HasPaymentIssue  bool              `json:"has_payment_issue"`
	PaymentConcerns  []string          `json:"payment_concerns,omitempty"`
	Confidence       ConfidenceFactors `json:"confidence_factors"`
}

// Method records which extraction path produced a Result.
type Method string

const (
	MethodHeuristic Method = "heuristic"
	MethodInference Method = "inference"
)

// InferenceExtractor is the higher-cost extraction collaborator. It
// must return the same Result shape as the heuristic extractor.
type InferenceExtractor interface {
	Extract(ctx context.Context, maskedText string) (Result, error)

	// Available returns true if the extractor is configured and ready.
	Available() bool
}

// ValidEdgeCase reports whether the tag is one of the known edge cases.
func ValidEdgeCase(e EdgeCase) bool {
	switch e {
	case EdgeNone, EdgeAlreadyCanceled, EdgeNoAppAccess, EdgePaymentDispute,
		EdgeCorporateAccount, EdgeSameieConcern, EdgeImmediateTermination, EdgeFutureMoveDate:
		return true
	}
	return false
}

// ValidLanguage reports whether the locale is supported.
func ValidLanguage(l Language) bool {
	switch l {
	case LangNorwegian, LangEnglish, LangGerman:
		return true
	}
	return false
}
