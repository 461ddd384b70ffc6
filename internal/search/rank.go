package search

import (
	"sort"
	"strings"

	"github.com/scholarmatch/discovery-service/internal/domain"
)

// normalizeTitle builds the dedup key for a work title: lower-cased with
// whitespace collapsed.
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// dedupeWorks removes duplicate works by normalized title. The first
// occurrence in input order wins; later duplicates are silently dropped.
func dedupeWorks(works []domain.Work) []domain.Work {
	seen := make(map[string]struct{}, len(works))
	unique := make([]domain.Work, 0, len(works))
	for _, w := range works {
		key := normalizeTitle(w.Title)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, w)
	}
	return unique
}

// Rank deduplicates, scores and orders candidate works: descending by
// relevance, ties broken by higher citation count, truncated to max.
// Beyond the citation tie-break the order is unspecified.
func Rank(scorer *Scorer, works []domain.Work, queryTerms []string, max int) []domain.ScoredWork {
	unique := dedupeWorks(works)

	scored := make([]domain.ScoredWork, 0, len(unique))
	for _, w := range unique {
		matches, relevance := scorer.Score(w, queryTerms)
		scored = append(scored, domain.ScoredWork{
			Work:         w,
			TopicMatches: matches,
			Relevance:    relevance,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Relevance != scored[j].Relevance {
			return scored[i].Relevance > scored[j].Relevance
		}
		return scored[i].Citations > scored[j].Citations
	})

	if max > 0 && len(scored) > max {
		scored = scored[:max]
	}
	return scored
}
