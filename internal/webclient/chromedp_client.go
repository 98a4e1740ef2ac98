package webclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/vigil/internal/logging"
)

// ChromeDPClient renders pages in headless Chrome before capturing
// them. Needed for policy pages that assemble their content with
// JavaScript, where the nethttp backend would only see a shell.
type ChromeDPClient struct {
	allocCtx  context.Context
	allocStop context.CancelFunc
	idleAfter time.Duration
	logger    logging.Logger
}

// NewChromeDPClient creates the rendering backend. idleAfter is how
// long the network must stay quiet before the page is considered
// settled.
func NewChromeDPClient(idleAfter time.Duration, logger logging.Logger, opts ...chromedp.ExecAllocatorOption) (*ChromeDPClient, error) {
	if idleAfter <= 0 {
		idleAfter = 2 * time.Second
	}
	if logger == nil {
		logger = logging.Nop{}
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], opts...)
	allocCtx, allocStop := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	return &ChromeDPClient{
		allocCtx:  allocCtx,
		allocStop: allocStop,
		idleAfter: idleAfter,
		logger:    logger.With(logging.Field{Key: "backend", Value: "chromedp"}),
	}, nil
}

// waitNetworkIdle returns a channel that closes once no request has
// been in flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) == 0 {
				startTimer()
			}
		}
	})

	// Cover pages that never issue a single request after load.
	startTimer()

	return idleChan
}

// Do navigates to the request URL, waits for the network to settle and
// captures the rendered document. Status and headers come from the
// main-document network response.
func (cdc *ChromeDPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	tabCtx, cancel := chromedp.NewContext(cdc.allocCtx)
	defer cancel()

	// Propagate caller cancellation into the tab.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	var mu sync.Mutex
	var status int
	headers := http.Header{}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if status != 0 {
			return
		}
		status = int(resp.Response.Status)
		for k, v := range resp.Response.Headers {
			if s, ok := v.(string); ok {
				headers.Set(k, s)
			}
		}
	})

	idleChan := waitNetworkIdle(tabCtx, cdc.idleAfter)

	cdc.logger.Debug("navigating", logging.Field{Key: "url", Value: req.URL})

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(req.URL),
	); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	select {
	case <-idleChan:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var html, finalURL string
	if err := chromedp.Run(tabCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return nil, fmt.Errorf("capture %s: %w", req.URL, err)
	}

	mu.Lock()
	defer mu.Unlock()

	return &Response{
		Request:    req,
		Headers:    headers,
		Body:       []byte(html),
		StatusCode: status,
		FinalURL:   finalURL,
		FetchedAt:  time.Now(),
	}, nil
}

// Close tears down the browser allocator.
func (cdc *ChromeDPClient) Close() error {
	cdc.allocStop()
	return nil
}
