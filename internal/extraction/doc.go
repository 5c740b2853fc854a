// Package extraction classifies inbound cancellation emails. It
// supports both heuristic (lexicon-based) and LLM-based extraction.
//
// The main components are:
//   - HeuristicExtractor: pure pattern-based signal extraction over
//     per-locale lexicons. Always returns a best-effort Result.
//   - LLMExtractor: higher-cost inference extraction returning the
//     same Result shape, with rate limiting and bounded retries.
//   - Router: runs the heuristic first and escalates to inference when
//     the deterministic result is not trustworthy enough, falling back
//     to the heuristic result when inference fails.
//
// A Result is immutable once produced; escalation regenerates it
// rather than mutating the heuristic one.
package extraction
