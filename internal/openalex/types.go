package openalex

import (
	"sort"
	"strings"

	"github.com/scholarmatch/discovery-service/internal/domain"
)

// worksResponse is the top-level JSON shape of a /works search response.
type worksResponse struct {
	Meta    responseMeta `json:"meta"`
	Results []work       `json:"results"`
}

// responseMeta carries pagination metadata.
type responseMeta struct {
	Count       int `json:"count"`
	Page        int `json:"page"`
	PerPage     int `json:"per_page"`
	CurrentPage int `json:"current_page"`
}

// work is one raw upstream record. Every field is optional; conversion to
// domain.Work validates and defaults each one so no untyped payload crosses
// the client boundary.
type work struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	DOI                   string           `json:"doi"`
	PublicationDate       string           `json:"publication_date"`
	CitedByCount          int              `json:"cited_by_count"`
	Type                  string           `json:"type"`
	Authorships           []authorship     `json:"authorships"`
	OpenAccess            *openAccessInfo  `json:"open_access"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

type authorship struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

type openAccessInfo struct {
	IsOA bool `json:"is_oa"`
}

const doiPrefix = "https://doi.org/"

// toWork converts a raw upstream record into a validated domain.Work.
func (w *work) toWork() domain.Work {
	title := w.DisplayName
	if title == "" {
		title = w.Title
	}

	authors := make([]string, 0, len(w.Authorships))
	for _, a := range w.Authorships {
		if a.Author.DisplayName != "" {
			authors = append(authors, a.Author.DisplayName)
		}
	}

	citations := w.CitedByCount
	if citations < 0 {
		citations = 0
	}

	doi := normalizeDOI(w.DOI)

	return domain.Work{
		ID:              domain.WorkID(doi, title),
		Title:           title,
		Authors:         authors,
		PublicationDate: w.PublicationDate,
		Citations:       citations,
		DOI:             doi,
		Abstract:        reconstructAbstract(w.AbstractInvertedIndex),
		Type:            w.Type,
		OpenAccess:      w.OpenAccess != nil && w.OpenAccess.IsOA,
	}
}

// normalizeDOI strips URL and scheme prefixes from DOIs and lowercases them.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	doi = strings.TrimPrefix(doi, doiPrefix)
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi:")
	return strings.ToLower(strings.TrimSpace(doi))
}

// reconstructAbstract rebuilds abstract text from the upstream inverted index
// format, which maps each word to the positions where it occurs.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	// Guard against malicious payloads with excessive position entries.
	if totalPairs > maxAbstractWords {
		return ""
	}
	pairs := make([]posWord, 0, totalPairs)

	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}

	return builder.String()
}

// WorksPage is one page of validated search results.
type WorksPage struct {
	// Works are the validated records of this page, in upstream order.
	Works []domain.Work

	// TotalResults is the upstream total count across all pages.
	TotalResults int

	// HasMore indicates whether another page is available.
	HasMore bool
}
