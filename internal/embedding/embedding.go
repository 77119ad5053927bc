// Package embedding implements the embedding-oracle contract: a batch of
// text in, a batch of vectors out. A permanently failing batch comes back
// as an empty slice rather than an error, so callers can log and move on
// instead of treating a bad batch as fatal to the whole sync.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"corpussync/internal/logging"
	"corpussync/internal/observability"
)

// Config describes one embedding endpoint. It mirrors the shape the
// teacher's own embeddings client expects (host/path/model/auth header)
// rather than depending on the application config package, which is being
// rewritten separately for this domain.
type Config struct {
	BaseURL   string
	Path      string
	Model     string
	APIHeader string // e.g. "Authorization"; empty means no auth header
	APIKey    string
	Timeout   time.Duration
}

// Oracle is the embed(batch<string>) -> batch<vector<float>> | []
// contract. A nil/empty return means the batch
// permanently failed (bad model, malformed response, endpoint down) and
// the caller should log and continue rather than abort the sync.
type Oracle interface {
	Embed(ctx context.Context, texts []string) [][]float32
}

// Client calls a configured HTTP embedding endpoint (llama.cpp/OpenAI
// compatible /embeddings-style API).
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if cfg.APIHeader == "Authorization" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	} else if cfg.APIHeader != "" {
		headers[cfg.APIHeader] = cfg.APIKey
	}
	httpClient := observability.WithHeaders(observability.NewHTTPClient(nil), headers)
	return &Client{cfg: cfg, httpClient: httpClient}
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed sends one batch to the endpoint. Any failure that makes the whole
// batch unusable - network error, non-2xx, malformed JSON, a mismatched
// output count - is logged and reported as an empty slice rather than
// propagated, per the oracle contract.
func (c *Client) Embed(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}

	reqBody, err := json.Marshal(embedReq{Model: c.cfg.Model, Input: texts})
	if err != nil {
		logging.Log.WithError(err).Error("embedding: marshal request")
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.cfg.BaseURL+c.cfg.Path, bytes.NewReader(reqBody))
	if err != nil {
		logging.Log.WithError(err).Error("embedding: build request")
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Log.WithError(err).WithField("batch_size", len(texts)).Warn("embedding: request failed")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.Log.WithError(err).Error("embedding: read response")
		return nil
	}
	if resp.StatusCode/100 != 2 {
		logging.Log.WithFields(map[string]interface{}{
			"status": resp.Status, "batch_size": len(texts),
		}).Warn("embedding: endpoint returned error status")
		return nil
	}

	var er embedResp
	if err := json.Unmarshal(body, &er); err != nil {
		logging.Log.WithError(err).WithField("body", string(observability.RedactJSON(body))).Error("embedding: parse response")
		return nil
	}
	if len(er.Data) != len(texts) {
		logging.Log.WithFields(map[string]interface{}{
			"got": len(er.Data), "want": len(texts),
		}).Warn("embedding: unexpected output count")
		return nil
	}

	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out
}

// CheckReachability sends a one-item probe batch and reports whether the
// endpoint is usable at all.
func (c *Client) CheckReachability(ctx context.Context) error {
	out := c.Embed(ctx, []string{"ping"})
	if len(out) == 0 {
		return fmt.Errorf("embedding: endpoint unreachable or returned no vectors")
	}
	return nil
}
