// Package metadata extracts a page's title, description, favicon and preview
// image with best-effort fallbacks.
package metadata

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/metrics"
)

// Result holds the extracted fields. Missing fields are empty strings.
type Result struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Favicon     string `json:"favicon"`
	Thumbnail   string `json:"thumbnail"`
	// Body is the HTML the fields were read from, kept for archiving.
	Body []byte `json:"-"`
}

// Fetcher retrieves a page over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Renderer retrieves a page after running its scripts.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (Page, error)
}

// Waiter delays a fetch until the target host may be contacted again.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Options wires optional collaborators into an Extractor.
type Options struct {
	// Renderer re-renders pages whose static HTML carries no title.
	Renderer Renderer
	Limiter  Waiter
	// Timeout bounds the whole extraction; zero means 10s.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Extractor implements the fetch, parse and fallback pipeline.
type Extractor struct {
	fetcher  Fetcher
	renderer Renderer
	limiter  Waiter
	timeout  time.Duration
	logger   *zap.Logger
}

// New constructs an Extractor.
func New(fetcher Fetcher, opts Options) (*Extractor, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Extractor{
		fetcher:  fetcher,
		renderer: opts.Renderer,
		limiter:  opts.Limiter,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}, nil
}

// Extract never fails: on any fetch or parse error it logs and returns a
// Result with every field empty.
func (e *Extractor) Extract(ctx context.Context, rawURL string) Result {
	start := time.Now()
	res, err := e.extract(ctx, rawURL)
	if err != nil {
		e.logger.Warn("metadata extraction failed", zap.String("url", rawURL), zap.Error(err))
		metrics.ObserveExtraction("error", time.Since(start))
		return Result{}
	}
	metrics.ObserveExtraction("ok", time.Since(start))
	return res
}

func (e *Extractor) extract(ctx context.Context, rawURL string) (Result, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse url: %w", err)
	}
	if (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return Result{}, fmt.Errorf("unsupported url %q", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, rawURL); err != nil {
			return Result{}, err
		}
	}
	page, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}
	res, err := Parse(pageURL, page.Body)
	if err != nil {
		return Result{}, err
	}
	res.Body = page.Body

	if res.Title == "" && e.renderer != nil {
		if rendered, ok := e.render(ctx, pageURL); ok {
			res = rendered
		}
	}
	return res, nil
}

// render retries the page in a browser. It only replaces the static result
// when the rendered document produced a title.
func (e *Extractor) render(ctx context.Context, pageURL *url.URL) (Result, bool) {
	page, err := e.renderer.Render(ctx, pageURL.String())
	if err != nil {
		e.logger.Debug("render fallback failed", zap.String("url", pageURL.String()), zap.Error(err))
		return Result{}, false
	}
	res, err := Parse(pageURL, page.Body)
	if err != nil || res.Title == "" {
		return Result{}, false
	}
	res.Body = page.Body
	return res, true
}
