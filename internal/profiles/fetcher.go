package profiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	userAgentHeaderName          = "User-Agent"
	acceptHeaderName             = "Accept"
	acceptHTMLValue              = "text/html,application/xhtml+xml"
	maxProfileHTMLBytes          = 256 * 1024
	defaultDialTimeout           = 5 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultHTTPTimeout           = 15 * time.Second
	defaultRenderTimeout         = 30 * time.Second
	defaultRenderSettleDelay     = 750 * time.Millisecond
	renderReadySelector          = "head"
	renderDocumentSelector       = "html"

	errMessageUnexpectedStatus = "profile request returned unexpected status code"
	errMessageMissingProfile   = "profile does not exist"
	errMessageRenderPage       = "render profile page"
)

// ErrMissingProfile indicates that the profile host has no page for a handle.
var ErrMissingProfile = errors.New(errMessageMissingProfile)

// PageRequest identifies the profile page of a handle.
type PageRequest struct {
	Handle string
	URL    string
}

// Page is the HTML of a profile page.
type Page struct {
	HTML      string
	SourceURL string
}

// PageFetcher retrieves profile pages.
type PageFetcher interface {
	FetchProfilePage(ctx context.Context, request PageRequest) (Page, error)
}

// HTTPFetcher downloads profile pages with a plain HTTP client.
type HTTPFetcher struct {
	client     *http.Client
	userAgents UserAgentProvider
}

// NewHTTPFetcher constructs an HTTPFetcher; a nil client gets a client with conservative timeouts.
func NewHTTPFetcher(client *http.Client, userAgents UserAgentProvider) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout, Transport: defaultTransport()}
	}
	return &HTTPFetcher{client: client, userAgents: userAgents}
}

// FetchProfilePage downloads the page at request.URL.
func (fetcher *HTTPFetcher) FetchProfilePage(ctx context.Context, request PageRequest) (Page, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URL, nil)
	if err != nil {
		return Page{}, err
	}
	if userAgent := fetcher.userAgents.RandomAgent(nil); userAgent != "" {
		httpRequest.Header.Set(userAgentHeaderName, userAgent)
	}
	httpRequest.Header.Set(acceptHeaderName, acceptHTMLValue)

	httpResponse, err := fetcher.client.Do(httpRequest)
	if err != nil {
		return Page{}, err
	}
	defer httpResponse.Body.Close()

	switch {
	case httpResponse.StatusCode == http.StatusNotFound || httpResponse.StatusCode == http.StatusGone:
		return Page{}, ErrMissingProfile
	case httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300:
		return Page{}, fmt.Errorf("%s: %d", errMessageUnexpectedStatus, httpResponse.StatusCode)
	}
	htmlBytes, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxProfileHTMLBytes))
	if err != nil {
		return Page{}, err
	}
	return Page{HTML: string(htmlBytes), SourceURL: httpResponse.Request.URL.String()}, nil
}

func defaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxConnsPerHost:       16,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}

// ChromeRendererConfig configures a ChromeRenderer.
type ChromeRendererConfig struct {
	// BinaryPath overrides the Chrome executable chromedp discovers on its own.
	BinaryPath  string
	UserAgent   string
	Timeout     time.Duration
	SettleDelay time.Duration
}

// ChromeRenderer renders profile pages in headless Chrome for hosts that build
// their metadata with JavaScript.
type ChromeRenderer struct {
	allocatorContext context.Context
	cancelAllocator  context.CancelFunc
	timeout          time.Duration
	settleDelay      time.Duration
}

// NewChromeRenderer prepares a Chrome allocator; the browser starts on the first render.
func NewChromeRenderer(configuration ChromeRendererConfig) *ChromeRenderer {
	userAgent := strings.TrimSpace(configuration.UserAgent)
	if userAgent == "" {
		userAgent = ChromeUserAgentLinux141
	}
	options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	options = append(options, chromedp.UserAgent(userAgent), chromedp.DisableGPU)
	if binaryPath := strings.TrimSpace(configuration.BinaryPath); binaryPath != "" {
		options = append(options, chromedp.ExecPath(binaryPath))
	}
	allocatorContext, cancelAllocator := chromedp.NewExecAllocator(context.Background(), options...)

	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	settleDelay := configuration.SettleDelay
	if settleDelay <= 0 {
		settleDelay = defaultRenderSettleDelay
	}
	return &ChromeRenderer{
		allocatorContext: allocatorContext,
		cancelAllocator:  cancelAllocator,
		timeout:          timeout,
		settleDelay:      settleDelay,
	}
}

// FetchProfilePage navigates to request.URL and returns the rendered document.
func (renderer *ChromeRenderer) FetchProfilePage(ctx context.Context, request PageRequest) (Page, error) {
	browserContext, cancelBrowser := chromedp.NewContext(renderer.allocatorContext)
	defer cancelBrowser()
	renderContext, cancelRender := context.WithTimeout(browserContext, renderer.timeout)
	defer cancelRender()
	stopPropagation := context.AfterFunc(ctx, cancelRender)
	defer stopPropagation()

	var renderedHTML string
	err := chromedp.Run(renderContext,
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(renderReadySelector, chromedp.ByQuery),
		chromedp.Sleep(renderer.settleDelay),
		chromedp.OuterHTML(renderDocumentSelector, &renderedHTML, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, ctxErr
		}
		return Page{}, fmt.Errorf("%s: %w", errMessageRenderPage, err)
	}
	return Page{HTML: renderedHTML, SourceURL: request.URL}, nil
}

// Close shuts the browser down.
func (renderer *ChromeRenderer) Close() {
	renderer.cancelAllocator()
}
