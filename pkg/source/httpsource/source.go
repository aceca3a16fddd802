// Package httpsource queries a paginated HTTP JSON API.
//
// A page is requested as
//
//	GET {BaseURL}/v1/{namespace}?{filters}&offset={offset}&limit={limit}
//
// where {filters} are the canonical query parameters of the FilterSet
// (see filter.FilterSet.Values). The response body must be a JSON object
// of the form {"records": [...]}.
package httpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/oldg9516/ai-agents-stats-sub004/pkg/filter"
	"github.com/oldg9516/ai-agents-stats-sub004/pkg/logging"
)

// Prometheus metrics for source requests.
var (
	sourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statsloader_source_requests_total",
		Help: "Total source requests by namespace and status",
	}, []string{"namespace", "status"})

	sourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statsloader_source_request_duration_seconds",
		Help:    "Source request duration in seconds by namespace",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"namespace"})
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// RequestIDHeader carries a per-request UUID for tracing on the backend.
const RequestIDHeader = "X-Request-ID"

// Config holds the source configuration.
type Config struct {
	// BaseURL of the API, e.g. "https://stats.example.com".
	BaseURL string

	// User-Agent header (REQUIRED)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// AuthToken is sent as a bearer token when set.
	AuthToken string

	// HTTPClient overrides the default client. Per-request deadlines come
	// from the context, so it needs no timeout of its own.
	HTTPClient *http.Client
}

// Source fetches pages of T from the API.
type Source[T any] struct {
	baseURL    *url.URL
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a Source.
func New[T any](cfg Config) (*Source[T], error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Source[T]{
		baseURL:    base,
		httpClient: httpClient,
		config:     cfg,
		logger:     logging.NewLogger(logging.ComponentHTTPSource),
	}, nil
}

// Query fetches records [offset, offset+limit) matching filters.
func (s *Source[T]) Query(ctx context.Context, filters filter.FilterSet, offset, limit int) ([]T, error) {
	namespace := filters.Namespace

	startTime := time.Now()
	defer func() {
		sourceRequestDuration.WithLabelValues(namespace).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.PageURL(filters, offset, limit), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if s.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.AuthToken)
	}

	s.logger.Debug().
		Str("namespace", namespace).
		Str("request_id", requestID).
		Int("offset", offset).
		Int("limit", limit).
		Msg("Executing source request")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		status := "network_error"
		if ctx.Err() != nil {
			status = "cancelled"
		}
		sourceRequestsTotal.WithLabelValues(namespace, status).Inc()
		return nil, fmt.Errorf("%s request: %w", ErrorClassNetwork, err)
	}
	defer resp.Body.Close()

	sourceRequestsTotal.WithLabelValues(namespace, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
		s.logger.Warn().
			Str("namespace", namespace).
			Str("request_id", requestID).
			Int("status", resp.StatusCode).
			Str("error_class", string(statusErr.Class())).
			Msg("Source request error")
		return nil, statusErr
	}

	var page struct {
		Records []T `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body", ErrDecode)
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if page.Records == nil {
		page.Records = []T{}
	}

	return page.Records, nil
}

// PageURL renders the request URL for one page.
func (s *Source[T]) PageURL(filters filter.FilterSet, offset, limit int) string {
	values := filters.Canonical().Values()
	values.Set("offset", strconv.Itoa(offset))
	values.Set("limit", strconv.Itoa(limit))

	u := *s.baseURL
	u.RawPath = strings.TrimSuffix(s.baseURL.EscapedPath(), "/") + "/v1/" + url.PathEscape(filters.Namespace)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/" + filters.Namespace
	u.RawQuery = values.Encode()
	return u.String()
}
