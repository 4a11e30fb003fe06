package services

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// GenerativeSource is the primary detector consulted by HybridDetector.
type GenerativeSource interface {
	Detect(ctx context.Context, message string, dctx DetectionContext) GenerativeResult
}

// failedNoMatchConfidence is reported when the generative path failed and
// the pattern matcher found nothing either.
const failedNoMatchConfidence = 0.7

type HybridDetector struct {
	generative GenerativeSource
	matcher    *PatternMatcher
	cfg        DetectionConfig
	log        logrus.FieldLogger
}

func NewHybridDetector(generative GenerativeSource, matcher *PatternMatcher, cfg DetectionConfig, log logrus.FieldLogger) *HybridDetector {
	// a fallback result must never reach the safe-auto threshold
	if cfg.FallbackCeiling >= cfg.SafeAutoThreshold {
		log.WithFields(logrus.Fields{
			"fallback_ceiling":    cfg.FallbackCeiling,
			"safe_auto_threshold": cfg.SafeAutoThreshold,
		}).Warn("Fallback ceiling not below safe-auto threshold, lowering it")
		cfg.FallbackCeiling = cfg.SafeAutoThreshold - 0.05
	}
	if matcher == nil {
		matcher = NewPatternMatcher()
	}
	return &HybridDetector{generative: generative, matcher: matcher, cfg: cfg, log: log}
}

// Detect runs the generative detector and falls back to the pattern matcher.
// Only a missing restaurant id is an error; detection failures come back as
// UsedFallback results.
func (h *HybridDetector) Detect(ctx context.Context, message string, dctx DetectionContext) (DetectionResult, error) {
	if dctx.RestaurantID == 0 {
		return DetectionResult{}, fmt.Errorf("%w: restaurant id is required", ErrInvalidDetectionContext)
	}

	gen := GenerativeResult{Outcome: OutcomeFailed, Err: errGenerativeDisabled}
	if h.generative != nil {
		gen = h.generative.Detect(ctx, message, dctx)
	}

	var result DetectionResult
	switch gen.Outcome {
	case OutcomeAction:
		result = h.fromAction(message, dctx, gen)
	case OutcomeText:
		result = h.fromText(message, dctx, gen)
	default:
		result = h.fromFailure(message, dctx, gen)
	}

	fields := logrus.Fields{
		"session_id":    dctx.SessionID,
		"generative":    gen.Outcome.String(),
		"confidence":    result.Confidence,
		"used_fallback": result.UsedFallback,
	}
	if result.Action != nil {
		fields["kind"] = result.Action.Kind
	}
	if gen.Outcome == OutcomeFailed {
		h.log.WithFields(fields).WithError(gen.Err).Warn("Detection degraded to pattern matcher")
	} else {
		h.log.WithFields(fields).Debug("Detection finished")
	}
	return result, nil
}

func (h *HybridDetector) fromAction(message string, dctx DetectionContext, gen GenerativeResult) DetectionResult {
	candidate := gen.Candidate
	if !candidate.Kind.Mutating() || candidate.Confidence >= h.cfg.ConfidenceFloor {
		return DetectionResult{
			Action:     candidate,
			Confidence: candidate.Confidence,
			Reasoning:  fmt.Sprintf("generative detector proposed %s", candidate.Kind),
			Reply:      gen.Text,
		}
	}

	if p := h.matcher.Match(message, dctx.Menu, dctx.History); p != nil {
		return h.fallback(p, gen.Text, fmt.Sprintf(
			"generative confidence %.2f below floor %.2f, pattern matcher proposed %s",
			candidate.Confidence, h.cfg.ConfidenceFloor, p.Kind))
	}
	return DetectionResult{
		Action:     candidate,
		Confidence: candidate.Confidence,
		Reasoning:  fmt.Sprintf("low-confidence generative %s kept, pattern matcher found nothing", candidate.Kind),
		Reply:      gen.Text,
	}
}

// fromText cross-checks a plain-text reply with the pattern matcher. Only
// pattern results above the floor overrule the generative reading.
func (h *HybridDetector) fromText(message string, dctx DetectionContext, gen GenerativeResult) DetectionResult {
	if p := h.matcher.Match(message, dctx.Menu, dctx.History); p != nil && p.Confidence > h.cfg.ConfidenceFloor {
		return h.fallback(p, gen.Text, fmt.Sprintf("generative reply had no action, pattern matcher found %s", p.Kind))
	}
	return DetectionResult{
		Confidence: math.Max(gen.Confidence, h.cfg.NoActionConfidence),
		Reasoning:  "no action intended",
		Reply:      gen.Text,
	}
}

func (h *HybridDetector) fromFailure(message string, dctx DetectionContext, gen GenerativeResult) DetectionResult {
	reason := "generative detector failed"
	if gen.Err != nil {
		reason = fmt.Sprintf("generative detector failed (%v)", gen.Err)
	}
	if p := h.matcher.Match(message, dctx.Menu, dctx.History); p != nil {
		return h.fallback(p, "", fmt.Sprintf("%s, pattern matcher proposed %s", reason, p.Kind))
	}
	return DetectionResult{
		Confidence:   math.Min(failedNoMatchConfidence, h.cfg.FallbackCeiling),
		UsedFallback: true,
		Reasoning:    reason + ", pattern matcher found nothing",
	}
}

func (h *HybridDetector) fallback(candidate *Candidate, reply, reasoning string) DetectionResult {
	candidate.Confidence = roundConfidence(math.Min(candidate.Confidence, h.cfg.FallbackCeiling))
	return DetectionResult{
		Action:       candidate,
		Confidence:   candidate.Confidence,
		UsedFallback: true,
		Reasoning:    reasoning,
		Reply:        reply,
	}
}
