package matcher

import (
	"fmt"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/similarity"
	"github.com/saturnino-fabrica-de-software/ponto/internal/threshold"
)

// Matcher picks the best qualifying roster entry for a probe embedding.
// The profile is bound at construction and never changes for the matcher's lifetime.
type Matcher struct {
	profile         threshold.Profile
	logger          *slog.Logger
	allowTruncation bool
}

// New creates a Matcher for the given session profile.
func New(profile threshold.Profile, logger *slog.Logger) *Matcher {
	return &Matcher{
		profile: profile,
		logger:  logger,
	}
}

// WithTruncation allows comparing embeddings of different lengths by cutting
// both to the shorter one. Every truncated comparison is logged.
func (m *Matcher) WithTruncation(allow bool) *Matcher {
	m.allowTruncation = allow
	return m
}

// Profile returns the thresholds this matcher applies.
func (m *Matcher) Profile() threshold.Profile {
	return m.profile
}

// Confidence blends similarity and distance into a single [0,1] score.
// Distance is expected to stay near or below 2.
func Confidence(similarity, distance float64) float64 {
	c := (similarity + (1 - distance/2)) / 2
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// Match scans the whole roster and returns the highest-confidence candidate
// that passes all three gates, or domain.NoMatch.
func (m *Matcher) Match(probe domain.Embedding, roster []domain.IdentityEmbedding) (domain.MatchDecision, error) {
	if err := probe.Validate(); err != nil {
		return domain.NoMatch, fmt.Errorf("probe: %w", err)
	}

	best := domain.NoMatch
	for _, entry := range roster {
		decision, ok := m.score(probe, entry)
		if !ok {
			continue
		}
		if better(decision, best) {
			best = decision
		}
	}

	return best, nil
}

// better reports whether candidate outranks current: higher confidence first,
// then lower distance.
func better(candidate, current domain.MatchDecision) bool {
	if !current.Matched {
		return true
	}
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	return candidate.Distance < current.Distance
}

// score evaluates one roster entry. ok is false when the entry is skipped or fails a gate.
func (m *Matcher) score(probe domain.Embedding, entry domain.IdentityEmbedding) (domain.MatchDecision, bool) {
	code := entry.Identity.Code

	if !entry.Identity.Active {
		return domain.NoMatch, false
	}

	if err := entry.Embedding.Validate(); err != nil {
		m.logger.Warn("skipping roster entry with invalid embedding",
			"identity_code", code,
			"error", err,
		)
		return domain.NoMatch, false
	}

	a, b := []float32(probe), []float32(entry.Embedding)
	if len(a) != len(b) {
		if !m.allowTruncation {
			m.logger.Warn("skipping roster entry with mismatched embedding length",
				"identity_code", code,
				"probe_len", len(a),
				"stored_len", len(b),
			)
			return domain.NoMatch, false
		}
		m.logger.Warn("truncating embeddings to compare mismatched lengths",
			"identity_code", code,
			"probe_len", len(a),
			"stored_len", len(b),
		)
		a, b = similarity.Truncate(a, b)
	}

	sim, err := similarity.CosineSimilarity(a, b)
	if err != nil {
		m.logger.Warn("similarity failed", "identity_code", code, "error", err)
		return domain.NoMatch, false
	}
	dist := similarity.EuclideanDistance(a, b)
	conf := Confidence(sim, dist)

	if sim < m.profile.MinSimilarity ||
		dist > m.profile.MaxEuclideanDistance ||
		conf < m.profile.MinConfidence {
		return domain.NoMatch, false
	}

	return domain.Matched(entry.Identity, sim, dist, conf), true
}
