package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	SourceID   = "notion"
	SourceName = "Notion"

	maxErrorBody = 64 << 10
)

// PropertyNames maps article fields onto Notion property names.
type PropertyNames struct {
	Title   string
	Excerpt string
	Date    string
	Status  string
	Cover   string
}

// Config holds Notion source configuration.
type Config struct {
	BaseURL           string
	APIKey            string
	Version           string
	DataSourceID      string
	ContainerKind     string // "data_source" or "database"
	PageSize          int
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Properties        PropertyNames
	PublishedStatus   string
}

// Source implements the page/block fetcher against the Notion REST API.
type Source struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	version         string
	dataSourceID    string
	containerKind   string
	pageSize        int
	limiter         *rate.Limiter
	maxAttempts     int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	props           PropertyNames
	publishedStatus string
	logger          *slog.Logger
}

// New creates a new Notion source.
func New(cfg Config, logger *slog.Logger) *Source {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		version:         cfg.Version,
		dataSourceID:    cfg.DataSourceID,
		containerKind:   cfg.ContainerKind,
		pageSize:        cfg.PageSize,
		limiter:         rate.NewLimiter(limit, 1),
		maxAttempts:     maxAttempts,
		initialBackoff:  cfg.InitialBackoff,
		maxBackoff:      cfg.MaxBackoff,
		props:           cfg.Properties,
		publishedStatus: cfg.PublishedStatus,
		logger:          logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// Configured reports whether a data source to query has been set.
func (s *Source) Configured() bool {
	return s.dataSourceID != ""
}

// do performs an API call, retrying rate-limited, server-side and network failures.
func (s *Source) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.doRequest(ctx, method, endpoint, payload, out)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}
		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		if wait := retryAfter(err); wait > backoff {
			backoff = wait
		}
		s.logger.Warn("request failed, retrying",
			"path", path,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Notion-Version", s.version)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, retryAfter: resp.Header.Get("Retry-After")}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(data, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var syntaxErr *json.SyntaxError
	return !errors.As(err, &syntaxErr)
}

func retryAfter(err error) time.Duration {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.retryAfter == "" {
		return 0
	}
	secs, convErr := strconv.Atoi(apiErr.retryAfter)
	if convErr != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
