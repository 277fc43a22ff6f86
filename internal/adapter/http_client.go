package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MKhiriev/go-browser-sync/models"
)

var (
	// ErrUnauthorized is returned when the server rejects the bearer
	// token (HTTP 401).
	ErrUnauthorized = errors.New("client unauthorized")

	// ErrServerUnavailable is returned for 5xx responses; the cycle is
	// retried on the next schedule.
	ErrServerUnavailable = errors.New("sync server unavailable")
)

// HTTPClientConfig configures the REST adapter.
type HTTPClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

type httpServerAdapter struct {
	client *resty.Client

	mu    sync.RWMutex
	token string
}

// NewHTTPServerAdapter builds the REST implementation of [ServerAdapter].
func NewHTTPServerAdapter(cfg HTTPClientConfig) ServerAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	cli := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &httpServerAdapter{client: cli}
}

func (h *httpServerAdapter) SetToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = strings.TrimSpace(token)
}

func (h *httpServerAdapter) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// syncRequest is the wire shape of one PATCH /api/sync/{feature} call.
type syncRequest struct {
	Since   string                  `json:"since,omitempty"`
	Records []models.SyncableRecord `json:"records,omitempty"`
}

// syncResponse is the wire shape of the server's reply.
type syncResponse struct {
	Records         []models.SyncableRecord `json:"records,omitempty"`
	ServerTimestamp string                  `json:"server_timestamp"`
}

func (h *httpServerAdapter) Sync(ctx context.Context, feature models.Feature, since string, sent []models.SyncableRecord) ([]models.SyncableRecord, string, error) {
	var out syncResponse

	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(h.Token()).
		SetBody(syncRequest{Since: since, Records: sent}).
		SetResult(&out).
		Patch("/api/sync/" + string(feature))
	if err != nil {
		return nil, "", fmt.Errorf("sync request for %s: %w", feature, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, "", fmt.Errorf("sync %s: %w", feature, err)
	}

	return out.Records, out.ServerTimestamp, nil
}

func mapHTTPError(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode() >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrServerUnavailable, resp.StatusCode())
	case resp.IsError():
		return fmt.Errorf("unexpected response status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
