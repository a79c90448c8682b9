package wind

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultMaxArchiveBytes bounds a single dataset download.
const DefaultMaxArchiveBytes = 512 << 20

// ErrFetchDisabled is returned when no source URL is configured.
var ErrFetchDisabled = errors.New("wind dataset source URL not configured")

// Fetcher downloads dataset archives over HTTP(S) or from S3.
type Fetcher struct {
	sourceURL  string
	maxBytes   int64
	httpClient *http.Client
	logger     *slog.Logger

	s3Config S3Config
	s3Once   sync.Once
	s3Client *s3.Client
	s3Err    error
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithS3Config sets how s3:// sources are reached.
func WithS3Config(cfg S3Config) FetcherOption {
	return func(f *Fetcher) { f.s3Config = cfg }
}

// WithMaxBytes overrides the download size limit.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewFetcher creates a Fetcher for sourceURL, an http(s):// or s3://bucket/key
// URL. An empty URL yields a Fetcher whose Fetch always fails with
// ErrFetchDisabled.
func NewFetcher(sourceURL string, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		sourceURL: sourceURL,
		maxBytes:  DefaultMaxArchiveBytes,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SourceURL returns the configured source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch downloads the dataset archive and returns its bytes.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	if f.sourceURL == "" {
		return nil, ErrFetchDisabled
	}

	start := time.Now()
	var (
		body []byte
		err  error
	)
	if strings.HasPrefix(f.sourceURL, "s3://") {
		body, err = f.fetchS3(ctx)
	} else {
		body, err = f.fetchHTTP(ctx)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Info("wind dataset downloaded",
		"url", f.sourceURL,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching wind dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, f.sourceURL)
	}

	return f.readLimited(resp.Body)
}
