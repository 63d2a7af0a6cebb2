// Package profiles looks up the display name and avatar of tracked handles.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

const (
	defaultBaseURLString     = "https://x.com"
	defaultWorkerConcurrency = 4
	defaultAccountTimeout    = 20 * time.Second

	errMessageEmptyHandle  = "handle cannot be empty"
	errMessageParseBaseURL = "parse profile base url"

	logMessageProfileResolved = "resolved profile"
	logMessageProfileFailed   = "profile lookup failed"
	logFieldHandle            = "handle"
)

var errEmptyHandle = errors.New(errMessageEmptyHandle)

// Profile is the public identity of a handle.
type Profile struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// Result is the outcome of resolving one handle.
type Result struct {
	Profile Profile
	Err     error
}

// Config customizes a Resolver.
type Config struct {
	BaseURL        string
	Fetcher        PageFetcher
	MaxConcurrent  int
	AccountTimeout time.Duration
	RequestPacing  RequestPacingConfig
	Logger         *zap.Logger
}

// Resolver resolves handles into profiles, caching completed lookups.
type Resolver struct {
	baseURL        *url.URL
	fetcher        PageFetcher
	workerCount    int
	accountTimeout time.Duration
	pacer          *requestPacer
	logger         *zap.Logger

	cache       map[string]Profile
	cacheMutex  sync.RWMutex
	flightGroup singleflight.Group
}

// NewResolver constructs a Resolver; without a fetcher profile pages are downloaded over HTTP.
func NewResolver(configuration Config) (*Resolver, error) {
	baseURLString := strings.TrimSpace(configuration.BaseURL)
	if baseURLString == "" {
		baseURLString = defaultBaseURLString
	}
	parsedBaseURL, err := url.Parse(strings.TrimRight(baseURLString, "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageParseBaseURL, err)
	}

	fetcher := configuration.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil, NewUserAgentProvider(nil))
	}
	workerCount := configuration.MaxConcurrent
	if workerCount <= 0 {
		workerCount = defaultWorkerConcurrency
	}
	accountTimeout := configuration.AccountTimeout
	if accountTimeout <= 0 {
		accountTimeout = defaultAccountTimeout
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		baseURL:        parsedBaseURL,
		fetcher:        fetcher,
		workerCount:    workerCount,
		accountTimeout: accountTimeout,
		pacer:          newRequestPacer(configuration.RequestPacing),
		logger:         logger,
		cache:          make(map[string]Profile),
	}, nil
}

// Resolve returns the profile of a single handle. Concurrent lookups of the same
// handle share one request; successful and missing lookups are cached.
func (resolver *Resolver) Resolve(ctx context.Context, handle string) (Profile, error) {
	cacheKey := feedsettings.NormalizeHandle(handle)
	if cacheKey == "" {
		return Profile{}, errEmptyHandle
	}
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}

	resolver.cacheMutex.RLock()
	if profile, ok := resolver.cache[cacheKey]; ok {
		resolver.cacheMutex.RUnlock()
		return profile, nil
	}
	resolver.cacheMutex.RUnlock()

	resultChannel := resolver.flightGroup.DoChan(cacheKey, func() (interface{}, error) {
		fetchContext, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolver.accountTimeout)
		defer cancel()
		profile, fetchErr := resolver.fetchProfile(fetchContext, strings.TrimPrefix(strings.TrimSpace(handle), "@"))
		if fetchErr == nil {
			resolver.cacheMutex.Lock()
			resolver.cache[cacheKey] = profile
			resolver.cacheMutex.Unlock()
		}
		return profile, fetchErr
	})

	select {
	case <-ctx.Done():
		return Profile{}, ctx.Err()
	case result := <-resultChannel:
		if result.Err != nil {
			resolver.logger.Debug(logMessageProfileFailed, zap.String(logFieldHandle, handle), zap.Error(result.Err))
			return Profile{}, result.Err
		}
		profile, _ := result.Val.(Profile)
		return profile, nil
	}
}

// ResolveMany resolves a batch of handles on a bounded worker pool, pacing the
// start of each lookup. Handles are deduplicated case-insensitively and results
// are keyed by normalized handle.
func (resolver *Resolver) ResolveMany(ctx context.Context, handles []string) map[string]Result {
	results := make(map[string]Result, len(handles))
	var (
		resultsMutex sync.Mutex
		group        errgroup.Group
	)
	group.SetLimit(resolver.workerCount)

	seen := make(map[string]struct{}, len(handles))
	for _, handle := range handles {
		normalizedHandle := feedsettings.NormalizeHandle(handle)
		if normalizedHandle == "" {
			continue
		}
		if _, exists := seen[normalizedHandle]; exists {
			continue
		}
		if len(seen) > 0 {
			if waitErr := waitForDuration(ctx, resolver.pacer.NextWait()); waitErr != nil {
				resultsMutex.Lock()
				results[normalizedHandle] = Result{Err: waitErr}
				resultsMutex.Unlock()
				seen[normalizedHandle] = struct{}{}
				continue
			}
		}
		seen[normalizedHandle] = struct{}{}

		handle := handle
		group.Go(func() error {
			profile, err := resolver.Resolve(ctx, handle)
			resultsMutex.Lock()
			results[normalizedHandle] = Result{Profile: profile, Err: err}
			resultsMutex.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// Forget drops the cached profile of a handle so the next lookup refetches it.
func (resolver *Resolver) Forget(handle string) {
	resolver.cacheMutex.Lock()
	delete(resolver.cache, feedsettings.NormalizeHandle(handle))
	resolver.cacheMutex.Unlock()
}

func (resolver *Resolver) fetchProfile(ctx context.Context, handle string) (Profile, error) {
	profileURL := resolver.baseURL.JoinPath(handle).String()
	page, err := resolver.fetcher.FetchProfilePage(ctx, PageRequest{Handle: handle, URL: profileURL})
	if err != nil {
		return Profile{}, err
	}
	parser := NewPageParser(page.HTML)
	profile := Profile{
		Handle:      handle,
		DisplayName: parser.ExtractDisplayName(handle),
		AvatarURL:   resolver.absoluteURL(page.SourceURL, parser.ExtractAvatarURL()),
	}
	resolver.logger.Debug(logMessageProfileResolved, zap.String(logFieldHandle, handle))
	return profile, nil
}

func (resolver *Resolver) absoluteURL(sourceURL string, reference string) string {
	if reference == "" {
		return ""
	}
	parsedReference, err := url.Parse(reference)
	if err != nil {
		return ""
	}
	base := resolver.baseURL
	if parsedSource, sourceErr := url.Parse(sourceURL); sourceErr == nil && parsedSource.IsAbs() {
		base = parsedSource
	}
	return base.ResolveReference(parsedReference).String()
}

// EnrichAccounts fills display names and avatars of accounts from resolved
// profiles, keeping existing values when a lookup failed or returned nothing.
func EnrichAccounts(accounts []feedsettings.Account, results map[string]Result) ([]feedsettings.Account, int) {
	enriched := make([]feedsettings.Account, len(accounts))
	updated := 0
	for index, account := range accounts {
		enriched[index] = account.Clone()
		result, exists := results[feedsettings.NormalizeHandle(account.Handle)]
		if !exists || result.Err != nil {
			continue
		}
		changed := false
		if result.Profile.DisplayName != "" && result.Profile.DisplayName != account.DisplayName {
			enriched[index].DisplayName = result.Profile.DisplayName
			changed = true
		}
		if result.Profile.AvatarURL != "" && result.Profile.AvatarURL != account.Avatar {
			enriched[index].Avatar = result.Profile.AvatarURL
			changed = true
		}
		if changed {
			updated++
		}
	}
	return enriched, updated
}
