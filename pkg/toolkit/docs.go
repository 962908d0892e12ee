package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/himanalot/auteur-sub004/pkg/tools"
)

// DocHit is one documentation search result.
type DocHit struct {
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// DocSearcher retrieves scripting documentation for the model. The
// retrieval mechanism behind it is not our concern here.
type DocSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]DocHit, error)
}

// HTTPDocSearcher queries a documentation search service over HTTP.
type HTTPDocSearcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPDocSearcher(baseURL string) *HTTPDocSearcher {
	return &HTTPDocSearcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPDocSearcher) Search(ctx context.Context, query string, limit int) ([]DocHit, error) {
	endpoint := s.baseURL + "/search?" + url.Values{
		"q":     {query},
		"limit": {strconv.Itoa(limit)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "doc search request failed")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("doc search returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Results []DocHit `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode doc search response")
	}

	log.Debug().Str("query", query).Int("hits", len(payload.Results)).Msg("doc search completed")
	return payload.Results, nil
}

// SearchDocsInput are the arguments of the search_ae_docs tool.
type SearchDocsInput struct {
	Query string `json:"query" jsonschema:"description=What to look up in the After Effects scripting documentation"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"description=Maximum number of results,default=5"`
}

const defaultSearchLimit = 5

// NewSearchDocsTool builds the search_ae_docs tool on top of a DocSearcher.
func NewSearchDocsTool(searcher DocSearcher) (*tools.ToolDefinition, error) {
	return tools.NewToolFromFunc(
		"search_ae_docs",
		"Search the After Effects scripting and expression documentation. Returns the most relevant passages.",
		func(ctx context.Context, input SearchDocsInput) (string, error) {
			limit := input.TopK
			if limit <= 0 {
				limit = defaultSearchLimit
			}
			hits, err := searcher.Search(ctx, input.Query, limit)
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return "No documentation found for: " + input.Query, nil
			}

			var sb strings.Builder
			for i, hit := range hits {
				fmt.Fprintf(&sb, "%d. %s (%s)\n%s\n", i+1, hit.Title, hit.Path, strings.TrimSpace(hit.Snippet))
				if i < len(hits)-1 {
					sb.WriteString("\n")
				}
			}
			return sb.String(), nil
		},
	)
}
