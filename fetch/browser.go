package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Browser is the headless fallback for upstreams that serve anti-bot
// pages to plain HTTP clients. Implementations return the response body
// and its declared content type.
type Browser interface {
	Fetch(ctx context.Context, url string) (body []byte, declaredType string, err error)
	Close() error
}

// ChromeBrowser fetches through a shared headless Chrome allocator. Tabs
// are cheap but upstream hosts are not; a semaphore bounds concurrent
// navigations to the pool size.
type ChromeBrowser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	sem         chan struct{}
	timeout     time.Duration
}

type ChromeOptions struct {
	PoolSize int
	Timeout  time.Duration
}

func NewChromeBrowser(opts ChromeOptions) (*ChromeBrowser, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("blink-settings", "imagesEnabled=true"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &ChromeBrowser{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sem:         make(chan struct{}, opts.PoolSize),
		timeout:     opts.Timeout,
	}, nil
}

func (b *ChromeBrowser) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	select {
	case b.sem <- struct{}{}:
		defer func() { <-b.sem }()
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}

	// Tab contexts must chain from the allocator, so caller cancellation
	// is propagated by hand.
	tabCtx, cancel := chromedp.NewContext(b.allocCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	var (
		mu        sync.Mutex
		requestID network.RequestID
		declared  string
	)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		// The top-level navigation response carries the asset bytes.
		if resp.Type != network.ResourceTypeDocument && resp.Type != network.ResourceTypeImage {
			return
		}
		mu.Lock()
		if requestID == "" {
			requestID = resp.RequestID
			declared = resp.Response.MimeType
		}
		mu.Unlock()
	})

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(url),
	); err != nil {
		return nil, "", fmt.Errorf("browser navigate %s: %w", url, err)
	}

	mu.Lock()
	id := requestID
	mime := declared
	mu.Unlock()
	if id == "" {
		return nil, "", fmt.Errorf("browser fetch %s: no response captured", url)
	}

	var body []byte
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, "", fmt.Errorf("browser read body %s: %w", url, err)
	}
	if len(body) == 0 {
		return nil, "", fmt.Errorf("browser fetch %s: empty body", url)
	}

	return body, mime, nil
}

func (b *ChromeBrowser) Close() error {
	b.allocCancel()
	return nil
}
