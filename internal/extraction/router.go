package extraction

import (
	"context"

	"go.uber.org/zap"
)

// templateSafeEdges are handled adequately by the draft templates and
// do not force escalation on their own.
var templateSafeEdges = map[EdgeCase]bool{
	EdgeNone:          true,
	EdgeSameieConcern: true,
	EdgeNoAppAccess:   true,
}

// RouterConfig holds escalation settings. Enablement is an explicit
// constructor value, not a process-wide toggle.
type RouterConfig struct {
	EscalationEnabled bool
}

// Router decides whether the deterministic extraction is trustworthy
// enough to use, or whether the higher-cost inference path must be
// attempted. Inference failure never aborts processing: the heuristic
// result is the fallback.
type Router struct {
	heuristic *HeuristicExtractor
	inference InferenceExtractor
	config    RouterConfig
	logger    *zap.Logger
}

// NewRouter creates a router. inference may be nil when the escalation
// path is disabled.
func NewRouter(heuristic *HeuristicExtractor, inference InferenceExtractor, cfg RouterConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		heuristic: heuristic,
		inference: inference,
		config:    cfg,
		logger:    logger,
	}
}

// Classify runs the heuristic extractor and escalates to inference when
// the result is not trustworthy enough. The returned method records
// which path produced the result.
func (r *Router) Classify(ctx context.Context, rawText string) (Result, Method) {
	base := r.heuristic.Extract(rawText)

	if !r.shouldEscalate(base) {
		return base, MethodHeuristic
	}
	if !r.config.EscalationEnabled || r.inference == nil || !r.inference.Available() {
		r.logger.Debug("escalation wanted but inference path unavailable",
			zap.String("edge_case", string(base.EdgeCase)))
		return base, MethodHeuristic
	}

	refined, err := r.inference.Extract(ctx, rawText)
	if err != nil {
		r.logger.Warn("inference extraction failed, falling back to heuristic result",
			zap.Error(err))
		return base, MethodHeuristic
	}

	// Inference extraction sometimes misses edge cases that local
	// pattern matching catches reliably.
	if refined.EdgeCase == EdgeNone {
		if ec := r.heuristic.DetectEdgeCase(rawText); ec != EdgeNone {
			refined.EdgeCase = ec
		}
	}

	return refined, MethodInference
}

// shouldEscalate applies the escalation rules to a heuristic result.
func (r *Router) shouldEscalate(res Result) bool {
	if !res.Confidence.StandardCase {
		return true
	}
	if !res.Confidence.ClearIntent {
		return true
	}
	if len(res.PolicyRisks) > 1 {
		return true
	}
	if !templateSafeEdges[res.EdgeCase] {
		return true
	}
	return false
}
