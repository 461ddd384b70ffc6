package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/scholarmatch/discovery-service/internal/domain"
	"github.com/scholarmatch/discovery-service/internal/search"
)

// structureQueryRequest is the payload of POST /api/v1/query.
type structureQueryRequest struct {
	Query string `json:"query" validate:"required,min=3,max=2000"`
}

// searchRequest is the payload of POST /api/v1/search. Either a free-text
// query (structured via the LLM collaborator) or explicit term lists may be
// provided; explicit lists are merged on top of the structured result.
type searchRequest struct {
	Query            string   `json:"query" validate:"omitempty,max=2000"`
	ResearchAreas    []string `json:"research_areas" validate:"max=20,dive,max=200"`
	Expertise        []string `json:"expertise" validate:"max=20,dive,max=200"`
	Keywords         []string `json:"keywords" validate:"max=20,dive,max=200"`
	MaxResults       int      `json:"max_results" validate:"min=0,max=200"`
	FromYear         int      `json:"from_year" validate:"min=0"`
	ToYear           int      `json:"to_year" validate:"min=0"`
	MinCitations     int      `json:"min_citations" validate:"min=0"`
	PublicationTypes []string `json:"publication_types" validate:"max=10"`
	OpenAccessOnly   bool     `json:"open_access_only"`
}

// similarRequest is the payload of POST /api/v1/search/similar.
type similarRequest struct {
	Result     domain.ScoredWork `json:"result" validate:"required"`
	MaxResults int               `json:"max_results" validate:"min=0,max=50"`
}

// expertsRequest is the payload of POST /api/v1/experts.
type expertsRequest struct {
	Query         string   `json:"query" validate:"omitempty,max=2000"`
	ResearchAreas []string `json:"research_areas" validate:"max=20,dive,max=200"`
	Expertise     []string `json:"expertise" validate:"max=20,dive,max=200"`
	Keywords      []string `json:"keywords" validate:"max=20,dive,max=200"`
	MaxResults    int      `json:"max_results" validate:"min=0,max=100"`
	RecentYears   int      `json:"recent_years" validate:"min=0,max=50"`
	MinWorks      int      `json:"min_works" validate:"min=0,max=100"`
}

// structureQuery turns a free-text query into its structured form.
func (s *Server) structureQuery(w http.ResponseWriter, r *http.Request) {
	var req structureQueryRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	if s.structurer == nil {
		writeError(w, http.StatusServiceUnavailable, "query structuring is not enabled")
		return
	}

	structured, err := s.structurer.Structure(r.Context(), req.Query)
	if err != nil {
		s.logger.Error().Err(err).Msg("query structuring failed")
		writeError(w, http.StatusBadGateway, "could not process query")
		return
	}

	writeJSON(w, http.StatusOK, structured)
}

// searchLiterature runs the retrieval-and-ranking pipeline.
func (s *Server) searchLiterature(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	query := s.resolveQuery(r.Context(), req.Query, req.ResearchAreas, req.Expertise, req.Keywords)

	ctx, cancel := context.WithTimeout(r.Context(), s.searchTimeout)
	defer cancel()

	resp := s.searcher.Search(ctx, query, search.Options{
		MaxResults:       req.MaxResults,
		FromYear:         req.FromYear,
		ToYear:           req.ToYear,
		MinCitations:     req.MinCitations,
		PublicationTypes: req.PublicationTypes,
		OpenAccessOnly:   req.OpenAccessOnly,
	})

	writeJSON(w, http.StatusOK, resp)
}

// searchSimilar finds works similar to a previously returned result.
func (s *Server) searchSimilar(w http.ResponseWriter, r *http.Request) {
	var req similarRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.searchTimeout)
	defer cancel()

	resp := s.searcher.SearchSimilar(ctx, req.Result, req.MaxResults)
	writeJSON(w, http.StatusOK, resp)
}

// searchExperts derives researcher expertise profiles for a query.
func (s *Server) searchExperts(w http.ResponseWriter, r *http.Request) {
	var req expertsRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	query := s.resolveQuery(r.Context(), req.Query, req.ResearchAreas, req.Expertise, req.Keywords)

	ctx, cancel := context.WithTimeout(r.Context(), s.searchTimeout)
	defer cancel()

	resp := s.searcher.SearchExperts(ctx, query, search.ExpertOptions{
		MaxResults:  req.MaxResults,
		RecentYears: req.RecentYears,
		MinWorks:    req.MinWorks,
	})

	writeJSON(w, http.StatusOK, resp)
}

// resolveQuery builds the StructuredQuery for a request: free text goes
// through the structuring collaborator when available, and explicit term
// lists are appended. A structuring failure yields whatever the explicit
// lists contain; when those are empty too, the search short-circuits.
func (s *Server) resolveQuery(ctx context.Context, freeText string, areas, expertise, keywords []string) domain.StructuredQuery {
	var query domain.StructuredQuery

	if freeText != "" && s.structurer != nil {
		structured, err := s.structurer.Structure(ctx, freeText)
		if err != nil {
			s.logger.Warn().Err(err).Msg("query structuring failed, using explicit terms only")
		} else {
			query = structured
		}
	}

	query.ResearchAreas = appendUnique(query.ResearchAreas, areas)
	query.Expertise = appendUnique(query.Expertise, expertise)
	query.SearchKeywords = appendUnique(query.SearchKeywords, keywords)
	return query
}

// appendUnique appends extras not already present, preserving order.
func appendUnique(base, extras []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, b := range base {
		seen[b] = struct{}{}
	}
	for _, e := range extras {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		base = append(base, e)
	}
	return base
}

// decodeAndValidate decodes the JSON body into dst and validates it,
// writing a 400 response and returning false on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}
