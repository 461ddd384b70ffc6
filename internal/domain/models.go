// Package domain defines the core data model for the discovery service:
// structured queries, bibliographic works, scored results, and researcher
// expertise profiles.
package domain

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// StructuredQuery is the normalized form of a free-text research request.
// The three term lists preserve insertion order; research areas carry the
// most weight when search terms are assembled.
type StructuredQuery struct {
	// ResearchAreas are the main academic fields of the request.
	ResearchAreas []string `json:"research_areas"`

	// Expertise lists specific expertise areas or topics.
	Expertise []string `json:"expertise"`

	// SearchKeywords are additional free-form search terms.
	SearchKeywords []string `json:"search_keywords"`
}

// IsEmpty reports whether the query carries no search terms at all.
// An empty query must short-circuit a search with zero results.
func (q StructuredQuery) IsEmpty() bool {
	return len(q.ResearchAreas) == 0 && len(q.Expertise) == 0 && len(q.SearchKeywords) == 0
}

// Terms returns all query terms in insertion order: research areas first,
// then expertise, then keywords.
func (q StructuredQuery) Terms() []string {
	terms := make([]string, 0, len(q.ResearchAreas)+len(q.Expertise)+len(q.SearchKeywords))
	terms = append(terms, q.ResearchAreas...)
	terms = append(terms, q.Expertise...)
	terms = append(terms, q.SearchKeywords...)
	return terms
}

// Work is one bibliographic entry returned by the upstream catalog.
// Works are constructed fresh per API response page and are immutable
// after construction.
type Work struct {
	// ID is a stable identifier: the DOI when present, otherwise a
	// deterministic hash of the title.
	ID string `json:"id"`

	// Title may be empty for malformed upstream records.
	Title string `json:"title"`

	// Authors holds author display names in upstream order.
	Authors []string `json:"authors"`

	// PublicationDate is an ISO date string (YYYY-MM-DD), or empty.
	PublicationDate string `json:"publication_date,omitempty"`

	// Citations is the upstream cited-by count, never negative.
	Citations int `json:"citations"`

	// DOI is the normalized DOI without URL prefix, or empty.
	DOI string `json:"doi,omitempty"`

	// Abstract is the reconstructed abstract text, or empty.
	Abstract string `json:"abstract,omitempty"`

	// Type is the upstream publication type (journal-article, preprint, ...).
	Type string `json:"type,omitempty"`

	// OpenAccess reports whether the work is openly accessible.
	OpenAccess bool `json:"open_access"`
}

// PublicationYear extracts the year from the publication date, or 0 when
// the date is missing or malformed.
func (w Work) PublicationYear() int {
	if len(w.PublicationDate) < 4 {
		return 0
	}
	var year int
	if _, err := fmt.Sscanf(w.PublicationDate[:4], "%d", &year); err != nil {
		return 0
	}
	return year
}

// WorkID derives the stable identifier for a work: the DOI when present,
// otherwise an FNV hash of the title so identical titles map to the same ID.
func WorkID(doi, title string) string {
	if doi != "" {
		return doi
	}
	h := fnv.New64a()
	h.Write([]byte(strings.TrimSpace(strings.ToLower(title))))
	return fmt.Sprintf("W%016x", h.Sum64())
}

// ScoredWork is a Work annotated with topical match strengths and a
// composite relevance score in [0,1].
type ScoredWork struct {
	Work

	// TopicMatches maps each matched query term to its match strength in (0.5, 1].
	TopicMatches map[string]float64 `json:"topic_matches"`

	// Relevance blends topical coverage and citation signal, in [0,1].
	Relevance float64 `json:"relevance_score"`
}

// WorkSummary is a condensed view of a work used inside expert profiles.
type WorkSummary struct {
	Title           string  `json:"title"`
	PublicationDate string  `json:"publication_date,omitempty"`
	Year            int     `json:"year,omitempty"`
	Citations       int     `json:"citations"`
	Relevance       float64 `json:"relevance"`
}

// Expert aggregates researcher expertise derived from retrieved works.
type Expert struct {
	// ID is a deterministic identifier derived from the author name.
	ID string `json:"id"`

	// Name is the author display name as reported upstream.
	Name string `json:"name"`

	// Citations is the sum of citation counts across the expert's works.
	Citations int `json:"citation_count"`

	// WorksCount is the number of retrieved works attributed to the expert.
	WorksCount int `json:"works_count"`

	// ExpertiseAreas are terms extracted from the expert's work titles
	// and abstracts, sorted for deterministic output.
	ExpertiseAreas []string `json:"expertise_areas"`

	// TopWorks are the expert's most cited works, at most five.
	TopWorks []WorkSummary `json:"top_works"`

	// RecentYears are the publication years seen across works, newest first.
	RecentYears []int `json:"recent_years"`

	// Relevance is the best per-work relevance observed for the expert.
	Relevance float64 `json:"relevance_score"`
}

// ExpertID builds the deterministic expert identifier used for aggregation
// across works by the same author name.
func ExpertID(name string) string {
	return "author:" + strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
