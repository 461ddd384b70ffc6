package search

import (
	"strings"

	"github.com/scholarmatch/discovery-service/internal/domain"
)

// ScorerConfig holds the tunable relevance weights. The constants were
// chosen empirically; they are configuration rather than code so deployments
// can adjust them.
type ScorerConfig struct {
	// CoverageWeight scales the topical coverage component. Must stay at
	// least four times CitationWeight so ranking favors topical fit over
	// popularity.
	CoverageWeight float64

	// CitationWeight scales the citation component.
	CitationWeight float64

	// CitationScale is the citation count at which the citation factor
	// saturates at 1.
	CitationScale int

	// MatchThreshold is the minimum partial-match similarity recorded as a
	// topic match.
	MatchThreshold float64
}

// DefaultScorerConfig returns the default relevance weights.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		CoverageWeight: 0.8,
		CitationWeight: 0.2,
		CitationScale:  100,
		MatchThreshold: 0.5,
	}
}

// Scorer computes topic-match maps and composite relevance scores.
// It is a pure function of its immutable inputs; no I/O.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a Scorer, falling back to defaults for unset weights.
func NewScorer(cfg ScorerConfig) *Scorer {
	def := DefaultScorerConfig()
	if cfg.CoverageWeight == 0 && cfg.CitationWeight == 0 {
		cfg.CoverageWeight = def.CoverageWeight
		cfg.CitationWeight = def.CitationWeight
	}
	if cfg.CitationScale == 0 {
		cfg.CitationScale = def.CitationScale
	}
	if cfg.MatchThreshold == 0 {
		cfg.MatchThreshold = def.MatchThreshold
	}
	return &Scorer{cfg: cfg}
}

// Score computes the topic-match map and relevance for a work against the
// given query terms. Relevance blends topical coverage with a citation
// factor and is monotonically non-decreasing in matched terms and citations.
// Empty query terms yield zero relevance and an empty match map.
func (s *Scorer) Score(work domain.Work, queryTerms []string) (map[string]float64, float64) {
	topicMatches := make(map[string]float64)
	if len(queryTerms) == 0 {
		return topicMatches, 0
	}

	workTerms := ExtractTerms(work.Title)
	for term := range ExtractTerms(work.Abstract) {
		workTerms[term] = struct{}{}
	}

	// Per-term best partial match, recorded above the threshold.
	for _, queryTerm := range queryTerms {
		best := 0.0
		for workTerm := range workTerms {
			if sim := partialSimilarity(queryTerm, workTerm); sim > best {
				best = sim
			}
		}
		if best > s.cfg.MatchThreshold {
			topicMatches[queryTerm] = best
		}
	}

	// Coverage counts work terms that partially match any query term.
	matched := 0
	for workTerm := range workTerms {
		for _, queryTerm := range queryTerms {
			if strings.Contains(workTerm, queryTerm) || strings.Contains(queryTerm, workTerm) {
				matched++
				break
			}
		}
	}
	coverage := float64(matched) / float64(len(queryTerms))
	if coverage > 1 {
		coverage = 1
	}

	citationFactor := float64(work.Citations) / float64(s.cfg.CitationScale)
	if citationFactor > 1 {
		citationFactor = 1
	}

	relevance := s.cfg.CoverageWeight*coverage + s.cfg.CitationWeight*citationFactor
	if relevance > 1 {
		relevance = 1
	}

	return topicMatches, relevance
}

// partialSimilarity measures how much of the longer term the shorter one
// covers when one contains the other, in [0,1]. Zero when neither contains
// the other.
func partialSimilarity(a, b string) float64 {
	switch {
	case a == "" || b == "":
		return 0
	case strings.Contains(b, a):
		return float64(len(a)) / float64(len(b))
	case strings.Contains(a, b):
		return float64(len(b)) / float64(len(a))
	}
	return 0
}
