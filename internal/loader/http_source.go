package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/resilience"
)

// HTTPSource fetches a JSON array of records with a GET request.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource returns an HTTPSource using client, or http.DefaultClient
// when client is nil.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{URL: url, Client: client}
}

func (s *HTTPSource) Name() string { return "http" }

// Fetch retrieves and streams the payload. Network failures and 5xx
// answers are retryable; any other non-2xx status is permanent.
func (s *HTTPSource) Fetch(ctx context.Context, emit func(hashtree.Record)) error {
	logger := slog.Default().With("component", "http-source", "url", s.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Error("client-side or network error", "error", err)
		return fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Error("backend returned error status",
			"status", resp.StatusCode,
			"body", string(body),
		)
		err := fmt.Errorf("%w: status %d", apperrors.ErrSourceUnavailable, resp.StatusCode)
		if resp.StatusCode >= 500 {
			return err
		}
		return resilience.Permanent(err)
	}

	err = DecodeRecords(resp.Body, emit)
	if err != nil && ctx.Err() != nil {
		return errors.Join(ctx.Err(), err)
	}
	return err
}
