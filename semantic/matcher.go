package semantic

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// DefaultThreshold is the minimum similarity for a match to be accepted.
const DefaultThreshold = 0.85

// MatchResult is the outcome of one Match call. Err records why no candidate
// could be scored; it is informational and never returned as an error.
type MatchResult struct {
	Matched    string
	Similarity float64
	Accepted   bool
	Err        error
}

// Matcher scores an invalid value against the allowed values of an enum.
type Matcher struct {
	cache  *Cache
	logger *zap.Logger
}

// NewMatcher returns a Matcher reading vectors from cache.
func NewMatcher(cache *Cache, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{cache: cache, logger: logger.With(zap.String("component", "semantic_matcher"))}
}

// Match returns the allowed value most similar to invalid. The highest
// similarity wins; on an exact tie the earlier allowed value is kept. A
// threshold <= 0 selects DefaultThreshold.
func (m *Matcher) Match(ctx context.Context, invalid string, allowed []string, threshold float64) MatchResult {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if len(allowed) == 0 || m == nil || m.cache == nil {
		return MatchResult{}
	}

	target, err := m.cache.Vector(ctx, invalid)
	if err != nil {
		m.logger.Warn("embedding unavailable, skipping semantic match",
			zap.String("value", invalid), zap.Error(err))
		return MatchResult{Err: err}
	}

	best := MatchResult{Similarity: math.Inf(-1)}
	for _, candidate := range allowed {
		vec, err := m.cache.Vector(ctx, candidate)
		if err != nil {
			m.logger.Warn("embedding unavailable, skipping semantic match",
				zap.String("value", candidate), zap.Error(err))
			return MatchResult{Err: err}
		}
		if sim := CosineSimilarity(target, vec); sim > best.Similarity {
			best.Matched = candidate
			best.Similarity = sim
		}
	}

	best.Accepted = best.Similarity >= threshold
	m.logger.Debug("semantic match scored",
		zap.String("value", invalid),
		zap.String("matched", best.Matched),
		zap.Float64("similarity", best.Similarity),
		zap.Bool("accepted", best.Accepted),
	)
	return best
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
