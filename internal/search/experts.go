package search

import (
	"context"
	"sort"
	"strings"

	"github.com/scholarmatch/discovery-service/internal/domain"
	"github.com/scholarmatch/discovery-service/internal/openalex"
)

// Expert search defaults.
const (
	// DefaultExpertMaxResults caps the returned expert list.
	DefaultExpertMaxResults = 20

	// DefaultRecentYears is the recency window when no year range is given.
	DefaultRecentYears = 5

	// DefaultMinWorks is the minimum retrieved works required to profile
	// an author as an expert.
	DefaultMinWorks = 3

	// expertFetchSize is the page size used when harvesting works for
	// author aggregation; more works surface more unique authors.
	expertFetchSize = 100

	// maxTopWorks bounds the per-expert top works list.
	maxTopWorks = 5
)

// ExpertOptions sizes and scopes an expert search.
type ExpertOptions struct {
	// MaxResults caps the expert list. Zero applies DefaultExpertMaxResults.
	MaxResults int

	// RecentYears is the recency window in years. Zero applies the default.
	RecentYears int

	// MinWorks is the minimum works per expert. Zero applies the default.
	MinWorks int
}

// ExpertsResponse is the caller-facing expert search result.
type ExpertsResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Experts []domain.Expert `json:"experts"`
}

// SearchExperts derives researcher expertise profiles from retrieved works:
// authors are aggregated across works, scored by topical relevance, filtered
// by a minimum works count, and ordered by (relevance, citations) descending.
func (s *Searcher) SearchExperts(ctx context.Context, query domain.StructuredQuery, opts ExpertOptions) *ExpertsResponse {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultExpertMaxResults
	}
	if opts.RecentYears <= 0 {
		opts.RecentYears = DefaultRecentYears
	}
	if opts.MinWorks <= 0 {
		opts.MinWorks = DefaultMinWorks
	}

	if query.IsEmpty() {
		s.logger.Warn().Msg("empty structured query, skipping expert search")
		return &ExpertsResponse{
			Status:  StatusSuccess,
			Message: domain.ErrEmptyQuery.Error(),
			Experts: []domain.Expert{},
		}
	}

	searchQuery := strings.Join(query.Terms(), " ")
	currentYear := s.now().Year()

	page, err := s.client.SearchWorks(ctx, searchQuery, openalex.SearchFilters{
		FromYear: currentYear - opts.RecentYears,
		ToYear:   currentYear,
		PerPage:  expertFetchSize,
		Sort:     "cited_by_count:desc",
	})
	if err != nil {
		s.logger.Error().Err(err).Str("query", searchQuery).Msg("expert search failed")
		s.observeExpertSearch(StatusError)
		return &ExpertsResponse{
			Status:  StatusError,
			Message: err.Error(),
			Experts: []domain.Expert{},
		}
	}

	experts := aggregateExperts(dedupeWorks(page.Works), QueryTerms(query.Terms()), opts.MinWorks)

	sort.Slice(experts, func(i, j int) bool {
		if experts[i].Relevance != experts[j].Relevance {
			return experts[i].Relevance > experts[j].Relevance
		}
		return experts[i].Citations > experts[j].Citations
	})
	if len(experts) > opts.MaxResults {
		experts = experts[:opts.MaxResults]
	}

	s.logger.Info().Str("query", searchQuery).Int("experts", len(experts)).Msg("expert search completed")
	s.observeExpertSearch(StatusSuccess)
	return &ExpertsResponse{Status: StatusSuccess, Experts: experts}
}

func (s *Searcher) observeExpertSearch(status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ExpertSearchesTotal.WithLabelValues(status).Inc()
}

// expertAccumulator tracks one author's profile while works are folded in.
type expertAccumulator struct {
	expert domain.Expert
	areas  map[string]struct{}
	years  map[int]struct{}
	works  []domain.WorkSummary
}

// aggregateExperts folds works into per-author profiles. Citation counts
// and works counts accumulate; expertise areas union the concept terms of
// every work; relevance keeps the best per-work topical coverage.
func aggregateExperts(works []domain.Work, queryTerms []string, minWorks int) []domain.Expert {
	accumulators := make(map[string]*expertAccumulator)
	order := make([]string, 0)

	for _, work := range works {
		if len(work.Authors) == 0 {
			continue
		}

		concepts := ExtractTerms(work.Title)
		for term := range ExtractTerms(work.Abstract) {
			concepts[term] = struct{}{}
		}
		relevance := topicalCoverage(concepts, queryTerms)
		year := work.PublicationYear()

		summary := domain.WorkSummary{
			Title:           work.Title,
			PublicationDate: work.PublicationDate,
			Year:            year,
			Citations:       work.Citations,
			Relevance:       relevance,
		}

		for _, name := range work.Authors {
			id := domain.ExpertID(name)
			acc, ok := accumulators[id]
			if !ok {
				acc = &expertAccumulator{
					expert: domain.Expert{ID: id, Name: name},
					areas:  make(map[string]struct{}),
					years:  make(map[int]struct{}),
				}
				accumulators[id] = acc
				order = append(order, id)
			}

			acc.expert.Citations += work.Citations
			acc.expert.WorksCount++
			if relevance > acc.expert.Relevance {
				acc.expert.Relevance = relevance
			}
			for term := range concepts {
				acc.areas[term] = struct{}{}
			}
			if year > 0 {
				acc.years[year] = struct{}{}
			}
			acc.works = append(acc.works, summary)
		}
	}

	experts := make([]domain.Expert, 0, len(accumulators))
	for _, id := range order {
		acc := accumulators[id]
		if acc.expert.WorksCount < minWorks {
			continue
		}

		acc.expert.ExpertiseAreas = sortedKeys(acc.areas)
		acc.expert.RecentYears = sortedYearsDesc(acc.years)

		sort.Slice(acc.works, func(i, j int) bool {
			return acc.works[i].Citations > acc.works[j].Citations
		})
		if len(acc.works) > maxTopWorks {
			acc.works = acc.works[:maxTopWorks]
		}
		acc.expert.TopWorks = acc.works

		experts = append(experts, acc.expert)
	}
	return experts
}

// topicalCoverage is the fraction of query terms covered by the concept set,
// where a concept covers a query term when the term occurs inside it.
func topicalCoverage(concepts map[string]struct{}, queryTerms []string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	matched := 0
	for concept := range concepts {
		for _, qt := range queryTerms {
			if strings.Contains(concept, qt) {
				matched++
				break
			}
		}
	}
	coverage := float64(matched) / float64(len(queryTerms))
	if coverage > 1 {
		coverage = 1
	}
	return coverage
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedYearsDesc(set map[int]struct{}) []int {
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}
