package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/seo401b/new-Allert/internal/domain"
)

const (
	defaultFetchTimeout  = 15 * time.Second
	defaultMaxFetchBytes = 10 << 20
	defaultImageCacheTTL = 24 * time.Hour
)

// FetcherConfig holds configuration for candidate image downloads
type FetcherConfig struct {
	Timeout  time.Duration
	MaxBytes int64
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// ImageFetcher downloads catalog images and keeps prepared copies in a cache
type ImageFetcher struct {
	httpClient *http.Client
	cache      domain.ImageCache
	preparer   *ImagePreparer
	maxBytes   int64
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewImageFetcher creates an image fetcher. cache may be nil to disable caching.
func NewImageFetcher(cache domain.ImageCache, preparer *ImagePreparer, cfg FetcherConfig) *ImageFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxFetchBytes
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultImageCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if preparer == nil {
		preparer = NewImagePreparer(ImageOptions{})
	}

	return &ImageFetcher{
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		preparer:   preparer,
		maxBytes:   maxBytes,
		cacheTTL:   ttl,
		logger:     logger.With("component", "image_fetcher"),
	}
}

// Fetch returns the image at url, prepared for the model
func (f *ImageFetcher) Fetch(ctx context.Context, url string) (domain.SourceImage, error) {
	if f.cache != nil {
		data, err := f.cache.Get(ctx, url)
		if err == nil {
			return f.preparer.Prepare(data)
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			f.logger.Warn("image cache read failed", "url", url, "error", err)
		}
	}

	raw, err := f.download(ctx, url)
	if err != nil {
		return domain.SourceImage{}, err
	}

	img, err := f.preparer.Prepare(raw)
	if err != nil {
		return domain.SourceImage{}, fmt.Errorf("candidate image %s: %w", url, err)
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, url, img.Data, f.cacheTTL); err != nil {
			f.logger.Warn("image cache write failed", "url", url, "error", err)
		}
	}

	return img, nil
}

func (f *ImageFetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Allert/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("fetch %s: image exceeds %d bytes", url, f.maxBytes)
	}

	return data, nil
}
