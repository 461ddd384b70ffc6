package search

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarmatch/discovery-service/internal/domain"
	"github.com/scholarmatch/discovery-service/internal/observability"
	"github.com/scholarmatch/discovery-service/internal/openalex"
)

// Response statuses exposed to the caller-facing contract.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultMaxResults is the result cap applied when the caller does not set one.
const DefaultMaxResults = 20

// WorksClient is the upstream catalog dependency of the orchestrator.
type WorksClient interface {
	SearchWorks(ctx context.Context, query string, filters openalex.SearchFilters) (*openalex.WorksPage, error)
}

// Options narrows and sizes a literature search.
type Options struct {
	// MaxResults caps the ranked result list. Zero applies DefaultMaxResults.
	MaxResults int

	// FromYear and ToYear bound the publication year (inclusive); zero is open.
	FromYear int
	ToYear   int

	// MinCitations drops works below this citation count upstream.
	MinCitations int

	// PublicationTypes keeps only the listed types when non-empty.
	PublicationTypes []string

	// OpenAccessOnly keeps only openly accessible works.
	OpenAccessOnly bool
}

// Metadata describes how a response was produced.
type Metadata struct {
	// Query is the flattened search string sent upstream.
	Query string `json:"query"`

	// TotalUpstream is the upstream total match count, before ranking.
	TotalUpstream int `json:"total_upstream"`

	// PagesFetched is the number of upstream pages requested.
	PagesFetched int `json:"pages_fetched"`

	// CacheHit reports whether the response was served from the cache.
	CacheHit bool `json:"cache_hit"`

	// Duration is the wall-clock search time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// Response is the caller-facing search result. A failed search carries
// StatusError, a message, and empty results; it never panics the caller.
type Response struct {
	Status   string              `json:"status"`
	Message  string              `json:"message,omitempty"`
	Results  []domain.ScoredWork `json:"results"`
	Metadata Metadata            `json:"metadata"`
}

// Searcher orchestrates a literature search: cache lookup, term building,
// paginated retrieval, filtering, scoring, ranking, and cache store.
// One search invocation is one logical task; the cache is the only shared
// mutable state.
type Searcher struct {
	client  WorksClient
	cache   *Cache
	scorer  *Scorer
	logger  zerolog.Logger
	metrics *observability.Metrics
	sort    string
	now     func() time.Time
}

// SearcherConfig configures the orchestrator.
type SearcherConfig struct {
	// Sort is the upstream sort expression for works retrieval.
	Sort string

	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// NewSearcher creates the search orchestrator.
func NewSearcher(client WorksClient, cache *Cache, scorer *Scorer, cfg SearcherConfig, logger zerolog.Logger, metrics *observability.Metrics) *Searcher {
	if cfg.Sort == "" {
		cfg.Sort = "cited_by_count:desc"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Searcher{
		client:  client,
		cache:   cache,
		scorer:  scorer,
		logger:  logger.With().Str("component", "searcher").Logger(),
		metrics: metrics,
		sort:    cfg.Sort,
		now:     cfg.Now,
	}
}

// Search runs the full retrieval-and-ranking pipeline for a structured query.
// An empty query short-circuits with zero results and no upstream call.
// Upstream failures are mapped to a StatusError response, never an error
// return or panic.
func (s *Searcher) Search(ctx context.Context, query domain.StructuredQuery, opts Options) *Response {
	start := s.now()

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	if query.IsEmpty() {
		s.logger.Warn().Msg("empty structured query, skipping search")
		return &Response{
			Status:  StatusSuccess,
			Message: domain.ErrEmptyQuery.Error(),
			Results: []domain.ScoredWork{},
		}
	}

	queryTerms := QueryTerms(query.Terms())
	searchQuery := strings.Join(query.Terms(), " ")

	key := CacheKey(searchQuery, maxResults, opts.FromYear, opts.ToYear,
		opts.MinCitations, opts.PublicationTypes, opts.OpenAccessOnly)

	if payload, ok := s.cache.Get(key); ok {
		var cached []domain.ScoredWork
		if err := json.Unmarshal(payload, &cached); err == nil {
			s.observeCache(true)
			s.logger.Debug().Str("query", searchQuery).Msg("cache hit")
			return &Response{
				Status:  StatusSuccess,
				Results: cached,
				Metadata: Metadata{
					Query:      searchQuery,
					CacheHit:   true,
					DurationMS: s.now().Sub(start).Milliseconds(),
				},
			}
		}
		// A corrupt entry is treated as a miss and overwritten below.
	}
	s.observeCache(false)

	works, totalUpstream, pages, err := s.fetchWorks(ctx, searchQuery, maxResults, opts)
	if err != nil {
		s.logger.Error().Err(err).Str("query", searchQuery).Msg("upstream search failed")
		s.observeSearch(StatusError, start)
		return &Response{
			Status:  StatusError,
			Message: err.Error(),
			Results: []domain.ScoredWork{},
			Metadata: Metadata{
				Query:        searchQuery,
				PagesFetched: pages,
				DurationMS:   s.now().Sub(start).Milliseconds(),
			},
		}
	}

	results := Rank(s.scorer, works, queryTerms, maxResults)

	// A cancelled search is never stored.
	if ctx.Err() == nil {
		if payload, err := json.Marshal(results); err == nil {
			s.cache.Put(key, payload)
		}
	}

	s.observeSearch(StatusSuccess, start)
	if s.metrics != nil {
		s.metrics.ResultsPerSearch.Observe(float64(len(results)))
	}
	s.logger.Info().
		Str("query", searchQuery).
		Int("results", len(results)).
		Int("pages", pages).
		Msg("search completed")

	return &Response{
		Status:  StatusSuccess,
		Results: results,
		Metadata: Metadata{
			Query:         searchQuery,
			TotalUpstream: totalUpstream,
			PagesFetched:  pages,
			DurationMS:    s.now().Sub(start).Milliseconds(),
		},
	}
}

// SearchSimilar finds works topically similar to a previously returned
// result, reusing its matched topic terms and title as a fresh query. The
// original work is excluded from the results.
func (s *Searcher) SearchSimilar(ctx context.Context, base domain.ScoredWork, maxResults int) *Response {
	if maxResults <= 0 {
		maxResults = 5
	}

	areas := make([]string, 0, 3)
	for term := range base.TopicMatches {
		areas = append(areas, term)
		if len(areas) == 3 {
			break
		}
	}

	query := domain.StructuredQuery{
		ResearchAreas:  areas,
		SearchKeywords: []string{base.Title},
	}

	// One extra slot so the base work can be filtered out.
	resp := s.Search(ctx, query, Options{MaxResults: maxResults + 1})
	if resp.Status != StatusSuccess {
		return resp
	}

	filtered := make([]domain.ScoredWork, 0, maxResults)
	for _, r := range resp.Results {
		if r.ID == base.ID {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) == maxResults {
			break
		}
	}
	resp.Results = filtered
	return resp
}

// fetchWorks retrieves up to maxResults candidate works, requesting pages in
// increasing order so the upstream sort stays cumulatively meaningful. A
// failure on the first page is surfaced; a failure on a later page returns
// the partial set already retrieved.
func (s *Searcher) fetchWorks(ctx context.Context, query string, maxResults int, opts Options) ([]domain.Work, int, int, error) {
	filters := openalex.SearchFilters{
		FromYear:     opts.FromYear,
		ToYear:       opts.ToYear,
		MinCitations: opts.MinCitations,
		PerPage:      maxResults,
		Sort:         s.sort,
	}

	var collected []domain.Work
	total := 0
	pages := 0

	for page := 1; len(collected) < maxResults; page++ {
		filters.Page = page
		result, err := s.client.SearchWorks(ctx, query, filters)
		if err != nil {
			if pages == 0 {
				return nil, 0, pages, err
			}
			s.logger.Warn().Err(err).Int("page", page).Msg("page fetch failed, returning partial results")
			break
		}
		pages++
		total = result.TotalResults

		if len(result.Works) == 0 {
			break
		}
		collected = append(collected, filterWorks(result.Works, opts.PublicationTypes, opts.OpenAccessOnly)...)

		if !result.HasMore {
			break
		}
	}

	return collected, total, pages, nil
}

// filterWorks applies the publication-type and open-access filters.
func filterWorks(works []domain.Work, publicationTypes []string, openAccessOnly bool) []domain.Work {
	if len(publicationTypes) == 0 && !openAccessOnly {
		return works
	}

	allowed := make(map[string]struct{}, len(publicationTypes))
	for _, t := range publicationTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}

	filtered := make([]domain.Work, 0, len(works))
	for _, w := range works {
		if openAccessOnly && !w.OpenAccess {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[strings.ToLower(w.Type)]; !ok {
				continue
			}
		}
		filtered = append(filtered, w)
	}
	return filtered
}

func (s *Searcher) observeCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHits.Inc()
	} else {
		s.metrics.CacheMisses.Inc()
	}
}

func (s *Searcher) observeSearch(status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchesTotal.WithLabelValues(status).Inc()
	s.metrics.SearchDuration.Observe(s.now().Sub(start).Seconds())
}
