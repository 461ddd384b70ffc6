package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarmatch/discovery-service/internal/domain"
)

// newTestClient creates a client pointed at a test server, with a generous
// rate limit and a recorded no-op sleep so retries complete instantly.
func newTestClient(serverURL string, sleeps *[]time.Duration) *Client {
	client := New(Config{
		BaseURL:    serverURL,
		Email:      "test@example.com",
		Timeout:    5 * time.Second,
		RateLimit:  1000,
		BurstSize:  1000,
		MaxRetries: 3,
		RetryDelay: time.Second,
	})
	client.sleep = func(ctx context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return nil
	}
	return client
}

// sampleWorksResponse returns a two-work search response.
func sampleWorksResponse() worksResponse {
	return worksResponse{
		Meta: responseMeta{Count: 2, Page: 1, PerPage: 25},
		Results: []work{
			{
				ID:              "https://openalex.org/W2741809807",
				DisplayName:     "Quantum Error Correction with Surface Codes",
				DOI:             "https://doi.org/10.1038/nature12373",
				PublicationDate: "2014-06-05",
				CitedByCount:    5000,
				Type:            "article",
				Authorships: []authorship{
					authorshipWith("John Smith"),
					authorshipWith("Jane Doe"),
				},
				OpenAccess: &openAccessInfo{IsOA: true},
				AbstractInvertedIndex: map[string][]int{
					"Surface": {0},
					"codes":   {1},
					"protect": {2},
					"quantum": {3},
					"states.": {4},
				},
			},
			{
				ID:              "https://openalex.org/W2741809808",
				DisplayName:     "Topological Qubits in Practice",
				DOI:             "https://doi.org/10.1126/science.1234567",
				PublicationDate: "2023-01-15",
				CitedByCount:    150,
				Type:            "article",
				Authorships:     []authorship{authorshipWith("Alice Johnson")},
				OpenAccess:      &openAccessInfo{IsOA: false},
			},
		},
	}
}

func authorshipWith(name string) authorship {
	var a authorship
	a.Author.DisplayName = name
	return a
}

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		client := New(Config{Email: "test@example.com"})

		require.NotNil(t, client)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultTimeout, client.config.Timeout)
		assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
		assert.Equal(t, DefaultBurstSize, client.config.BurstSize)
		assert.Equal(t, DefaultMaxRetries, client.config.MaxRetries)
		assert.Equal(t, DefaultRetryDelay, client.config.RetryDelay)
	})

	t.Run("keeps custom config", func(t *testing.T) {
		client := New(Config{
			BaseURL:    "https://custom.api.org",
			Email:      "researcher@university.edu",
			Timeout:    60 * time.Second,
			RateLimit:  20.0,
			BurstSize:  20,
			MaxRetries: 5,
			RetryDelay: 2 * time.Second,
		})

		require.NotNil(t, client)
		assert.Equal(t, "https://custom.api.org", client.config.BaseURL)
		assert.Equal(t, "researcher@university.edu", client.config.Email)
		assert.Equal(t, 5, client.config.MaxRetries)
		assert.Equal(t, 2*time.Second, client.config.RetryDelay)
	})
}

func TestClient_SearchWorks(t *testing.T) {
	t.Run("successful search", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works", r.URL.Path)
			assert.Equal(t, "quantum error correction", r.URL.Query().Get("search"))
			assert.Equal(t, "test@example.com", r.URL.Query().Get("mailto"))
			assert.Equal(t, "25", r.URL.Query().Get("per-page"))
			assert.Equal(t, "1", r.URL.Query().Get("page"))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(sampleWorksResponse())
		}))
		defer server.Close()

		client := newTestClient(server.URL, nil)
		page, err := client.SearchWorks(context.Background(), "quantum error correction", SearchFilters{})
		require.NoError(t, err)
		require.NotNil(t, page)

		assert.Equal(t, 2, page.TotalResults)
		assert.False(t, page.HasMore)
		require.Len(t, page.Works, 2)

		first := page.Works[0]
		assert.Equal(t, "10.1038/nature12373", first.ID)
		assert.Equal(t, "Quantum Error Correction with Surface Codes", first.Title)
		assert.Equal(t, []string{"John Smith", "Jane Doe"}, first.Authors)
		assert.Equal(t, 5000, first.Citations)
		assert.True(t, first.OpenAccess)
		assert.Equal(t, "Surface codes protect quantum states.", first.Abstract)

		second := page.Works[1]
		assert.Equal(t, "10.1126/science.1234567", second.ID)
		assert.False(t, second.OpenAccess)
		assert.Empty(t, second.Abstract)
	})

	t.Run("sends filters and pagination parameters", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "publication_year:2018-2024,cited_by_count:>49", r.URL.Query().Get("filter"))
			assert.Equal(t, "3", r.URL.Query().Get("page"))
			assert.Equal(t, "50", r.URL.Query().Get("per-page"))
			assert.Equal(t, "cited_by_count:desc", r.URL.Query().Get("sort"))

			json.NewEncoder(w).Encode(worksResponse{Meta: responseMeta{Count: 0}})
		}))
		defer server.Close()

		client := newTestClient(server.URL, nil)
		_, err := client.SearchWorks(context.Background(), "botany", SearchFilters{
			FromYear:     2018,
			ToYear:       2024,
			MinCitations: 50,
			Page:         3,
			PerPage:      50,
			Sort:         "cited_by_count:desc",
		})
		require.NoError(t, err)
	})

	t.Run("open-ended year range", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "publication_year:2020-", r.URL.Query().Get("filter"))
			json.NewEncoder(w).Encode(worksResponse{})
		}))
		defer server.Close()

		client := newTestClient(server.URL, nil)
		_, err := client.SearchWorks(context.Background(), "botany", SearchFilters{FromYear: 2020})
		require.NoError(t, err)
	})

	t.Run("caps page size at upstream maximum", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "200", r.URL.Query().Get("per-page"))
			json.NewEncoder(w).Encode(worksResponse{})
		}))
		defer server.Close()

		client := newTestClient(server.URL, nil)
		_, err := client.SearchWorks(context.Background(), "botany", SearchFilters{PerPage: 500})
		require.NoError(t, err)
	})

	t.Run("reports more pages when results remain", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := sampleWorksResponse()
			resp.Meta.Count = 100
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		client := newTestClient(server.URL, nil)
		page, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{Page: 1, PerPage: 2})
		require.NoError(t, err)

		assert.Equal(t, 100, page.TotalResults)
		assert.True(t, page.HasMore)
	})

	t.Run("malformed JSON in 200 response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"meta": {"count": 5}, "results": [`))
		}))
		defer server.Close()

		client := newTestClient(server.URL, nil)
		page, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{})
		require.Error(t, err)
		assert.Nil(t, page)

		var malformed *domain.MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "OpenAlex", malformed.Source)
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
	})
}

func TestClient_RetryBehavior(t *testing.T) {
	t.Run("429 honors Retry-After then succeeds", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch requests.Add(1) {
			case 1:
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(http.StatusTooManyRequests)
			case 2:
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
			default:
				json.NewEncoder(w).Encode(sampleWorksResponse())
			}
		}))
		defer server.Close()

		var sleeps []time.Duration
		client := newTestClient(server.URL, &sleeps)

		page, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{})
		require.NoError(t, err)
		require.Len(t, page.Works, 2)

		assert.Equal(t, int32(3), requests.Load())
		assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, sleeps)
	})

	t.Run("429 without Retry-After falls back to double delay", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			json.NewEncoder(w).Encode(sampleWorksResponse())
		}))
		defer server.Close()

		var sleeps []time.Duration
		client := newTestClient(server.URL, &sleeps)

		_, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{})
		require.NoError(t, err)
		assert.Equal(t, []time.Duration{2 * time.Second}, sleeps)
	})

	t.Run("429 exhausting the retry budget returns a rate limit error", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		var sleeps []time.Duration
		client := newTestClient(server.URL, &sleeps)

		_, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{})
		require.Error(t, err)

		var rateErr *domain.RateLimitError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, time.Second, rateErr.RetryAfter)
		assert.ErrorIs(t, err, domain.ErrRateLimited)

		// MaxRetries=3 allows four requests total and three sleeps.
		assert.Equal(t, int32(4), requests.Load())
		assert.Len(t, sleeps, 3)
	})

	t.Run("5xx retries with linear backoff", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(sampleWorksResponse())
		}))
		defer server.Close()

		var sleeps []time.Duration
		client := newTestClient(server.URL, &sleeps)

		page, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{})
		require.NoError(t, err)
		require.Len(t, page.Works, 2)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
	})

	t.Run("5xx exhausting the retry budget returns a server error", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message": "upstream exploded"}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL, nil)
		_, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{})
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, "upstream exploded", apiErr.Message)
		assert.ErrorIs(t, err, domain.ErrUpstreamServer)
		assert.Equal(t, int32(4), requests.Load())
	})

	t.Run("4xx fails immediately without retry", func(t *testing.T) {
		var requests atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "invalid filter"}`))
		}))
		defer server.Close()

		var sleeps []time.Duration
		client := newTestClient(server.URL, &sleeps)

		_, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{})
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "invalid filter", apiErr.Message)
		assert.ErrorIs(t, err, domain.ErrUpstreamClient)

		assert.Equal(t, int32(1), requests.Load())
		assert.Empty(t, sleeps)
	})

	t.Run("transient network failure retries then maps to typed error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close() // refuse all connections

		var sleeps []time.Duration
		client := newTestClient(server.URL, &sleeps)

		_, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrTransient)
		assert.Len(t, sleeps, 3)
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := newTestClient(server.URL, nil)
		client.sleep = func(ctx context.Context, d time.Duration) error {
			return context.Canceled
		}

		_, err := client.SearchWorks(context.Background(), "quantum", SearchFilters{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestClient_RetryAfter(t *testing.T) {
	client := New(Config{Email: "test@example.com", RetryDelay: time.Second})

	t.Run("seconds form", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{"Retry-After": []string{"7"}}}
		assert.Equal(t, 7*time.Second, client.retryAfter(resp))
	})

	t.Run("HTTP date form", func(t *testing.T) {
		date := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
		resp := &http.Response{Header: http.Header{"Retry-After": []string{date}}}
		delay := client.retryAfter(resp)
		assert.Greater(t, delay, 20*time.Second)
		assert.LessOrEqual(t, delay, 30*time.Second)
	})

	t.Run("missing header falls back", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{}}
		assert.Equal(t, 2*time.Second, client.retryAfter(resp))
	})

	t.Run("garbage header falls back", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{"Retry-After": []string{"soon"}}}
		assert.Equal(t, 2*time.Second, client.retryAfter(resp))
	})
}

func TestBuildSearchURL(t *testing.T) {
	client := New(Config{BaseURL: "https://api.openalex.org", Email: "test@example.com"})

	t.Run("includes mailto and defaults", func(t *testing.T) {
		rawURL, err := client.buildSearchURL("machine learning", SearchFilters{})
		require.NoError(t, err)

		assert.Contains(t, rawURL, "search=machine+learning")
		assert.Contains(t, rawURL, "mailto=test%40example.com")
		assert.Contains(t, rawURL, "per-page=25")
		assert.Contains(t, rawURL, "page=1")
		assert.NotContains(t, rawURL, "filter=")
		assert.NotContains(t, rawURL, "sort=")
	})

	t.Run("min citations is an inclusive bound", func(t *testing.T) {
		clauses := buildFilterClauses(SearchFilters{MinCitations: 100})
		require.Len(t, clauses, 1)
		assert.Equal(t, "cited_by_count:>99", clauses[0])
	})
}
