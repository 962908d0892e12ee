package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// HTTPScriptRunner sends ExtendScript to a bridge service that relays it
// into the After Effects host over the CEP/UXP socket.
type HTTPScriptRunner struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPScriptRunner(baseURL string) *HTTPScriptRunner {
	return &HTTPScriptRunner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (r *HTTPScriptRunner) Run(ctx context.Context, script string) (string, error) {
	body, err := json.Marshal(map[string]string{"script": script})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "script bridge request failed")
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", errors.Errorf("script bridge returned status %d: %s", resp.StatusCode, string(raw))
	}

	var payload struct {
		Result string `json:"result"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "failed to decode script bridge response")
	}
	if payload.Error != "" {
		return "", errors.Errorf("script failed in host: %s", payload.Error)
	}

	log.Debug().Int("script_len", len(script)).Msg("script executed in host")
	return payload.Result, nil
}
