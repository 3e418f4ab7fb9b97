package llm

import (
	"fmt"
	"math"
	"strings"
)

// ValidateRequest rejects requests with an empty title or body.
func ValidateRequest(req *AnalysisRequest) error {
	if req == nil {
		return ValidationError("request is nil")
	}
	if strings.TrimSpace(req.Title) == "" {
		return ValidationError("title is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return ValidationError("body is required")
	}
	return nil
}

// RawScores holds parsed but not yet normalized backend output.
type RawScores struct {
	Score           *float64
	Lean            string
	FactualAccuracy *float64
	EmotionalTone   *float64
	Confidence      *float64
}

// Normalize rounds numeric fields and checks ranges. Missing fields and values
// outside 0-100 after rounding yield an invalid-response error.
func (r RawScores) Normalize(provider string) (*AnalysisResult, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"score", r.Score},
		{"factual_accuracy", r.FactualAccuracy},
		{"emotional_tone", r.EmotionalTone},
		{"confidence", r.Confidence},
	}
	out := make([]int, len(fields))
	for i, f := range fields {
		if f.v == nil {
			return nil, NewError(KindInvalidResponse, provider, fmt.Sprintf("missing field %s", f.name), nil)
		}
		n, err := roundPercent(*f.v)
		if err != nil {
			return nil, NewError(KindInvalidResponse, provider, fmt.Sprintf("field %s: %v", f.name, err), nil)
		}
		out[i] = n
	}

	lean, ok := ParseLean(r.Lean)
	if !ok {
		return nil, NewError(KindInvalidResponse, provider, fmt.Sprintf("unrecognized lean %q", r.Lean), nil)
	}

	return &AnalysisResult{
		Score:           out[0],
		Lean:            lean,
		FactualAccuracy: out[1],
		EmotionalTone:   out[2],
		Confidence:      out[3],
		Provider:        provider,
		Origin:          OriginLive,
	}, nil
}

func roundPercent(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a number")
	}
	n := math.Round(v)
	if n < 0 || n > 100 {
		return 0, fmt.Errorf("%v out of range 0-100", v)
	}
	return int(n), nil
}

// ParseLean maps a backend label onto the lean enum, accepting common spellings.
func ParseLean(s string) (Lean, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.Trim(norm, `"'.`)
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	switch norm {
	case "left", "far-left", "liberal", "progressive":
		return LeanLeft, true
	case "center-left", "centre-left", "lean-left", "left-center", "left-leaning":
		return LeanCenterLeft, true
	case "center", "centre", "neutral", "centrist", "balanced":
		return LeanCenter, true
	case "center-right", "centre-right", "lean-right", "right-center", "right-leaning":
		return LeanCenterRight, true
	case "right", "far-right", "conservative":
		return LeanRight, true
	default:
		return "", false
	}
}
