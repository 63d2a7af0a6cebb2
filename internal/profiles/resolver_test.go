package profiles

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/launchkol/kolfeed/internal/feedsettings"
)

const profilePageTemplate = `<html><head><title>%s (@%s) / X</title><meta property="og:image" content="/avatars/%s.jpg"></head></html>`

type profileServer struct {
	server   *httptest.Server
	requests atomic.Int64
	agents   sync.Map
}

func newProfileServer(t *testing.T, displayNames map[string]string) *profileServer {
	t.Helper()
	profiles := &profileServer{}
	profiles.server = httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		profiles.requests.Add(1)
		profiles.agents.Store(request.Header.Get(userAgentHeaderName), struct{}{})
		handle := strings.Trim(request.URL.Path, "/")
		displayName, exists := displayNames[strings.ToLower(handle)]
		if !exists {
			http.NotFound(responseWriter, request)
			return
		}
		fmt.Fprintf(responseWriter, profilePageTemplate, displayName, handle, handle)
	}))
	t.Cleanup(profiles.server.Close)
	return profiles
}

func TestResolverResolveParsesProfile(t *testing.T) {
	profiles := newProfileServer(t, map[string]string{"mooncaller": "Moon Caller"})
	resolver, err := NewResolver(Config{BaseURL: profiles.server.URL})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	profile, err := resolver.Resolve(context.Background(), "@MoonCaller")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile.DisplayName != "Moon Caller" {
		t.Fatalf("unexpected display name %q", profile.DisplayName)
	}
	expectedAvatar := profiles.server.URL + "/avatars/MoonCaller.jpg"
	if profile.AvatarURL != expectedAvatar {
		t.Fatalf("expected avatar %q, got %q", expectedAvatar, profile.AvatarURL)
	}

	if _, err := resolver.Resolve(context.Background(), "mooncaller"); err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if profiles.requests.Load() != 1 {
		t.Fatalf("expected a single request, got %d", profiles.requests.Load())
	}
	var agentCount int
	profiles.agents.Range(func(key, _ any) bool {
		if key.(string) == "" {
			t.Fatalf("expected a user agent header")
		}
		agentCount++
		return true
	})
	if agentCount == 0 {
		t.Fatalf("expected the user agent to be recorded")
	}
}

func TestResolverResolveErrors(t *testing.T) {
	profiles := newProfileServer(t, map[string]string{})
	resolver, err := NewResolver(Config{BaseURL: profiles.server.URL})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), "ghost"); !errors.Is(err, ErrMissingProfile) {
		t.Fatalf("expected ErrMissingProfile, got %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), " @ "); !errors.Is(err, errEmptyHandle) {
		t.Fatalf("expected errEmptyHandle, got %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := resolver.Resolve(cancelled, "ghost2"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}

func TestResolverResolveManyDeduplicates(t *testing.T) {
	profiles := newProfileServer(t, map[string]string{"alpha": "Alpha", "beta": "Beta"})
	resolver, err := NewResolver(Config{BaseURL: profiles.server.URL, MaxConcurrent: 2})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	results := resolver.ResolveMany(context.Background(), []string{"alpha", "@ALPHA", "beta", "ghost", ""})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results["alpha"].Profile.DisplayName != "Alpha" || results["beta"].Profile.DisplayName != "Beta" {
		t.Fatalf("unexpected results %+v", results)
	}
	if !errors.Is(results["ghost"].Err, ErrMissingProfile) {
		t.Fatalf("expected missing profile for ghost, got %v", results["ghost"].Err)
	}
	if profiles.requests.Load() != 3 {
		t.Fatalf("expected 3 requests, got %d", profiles.requests.Load())
	}
}

func TestResolverForgetRefetches(t *testing.T) {
	profiles := newProfileServer(t, map[string]string{"alpha": "Alpha"})
	resolver, err := NewResolver(Config{BaseURL: profiles.server.URL})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	for iteration := 0; iteration < 2; iteration++ {
		if _, err := resolver.Resolve(context.Background(), "alpha"); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		resolver.Forget("ALPHA")
	}
	if profiles.requests.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", profiles.requests.Load())
	}
}

func TestRequestPacerBurstRest(t *testing.T) {
	pacer := newRequestPacer(RequestPacingConfig{
		BaseDelay:       10 * time.Millisecond,
		BurstSize:       3,
		BurstRest:       time.Second,
		RandomGenerator: rand.New(rand.NewSource(1)),
	})

	expected := []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, time.Second + 10*time.Millisecond, 10 * time.Millisecond}
	for index, expectedWait := range expected {
		if wait := pacer.NextWait(); wait != expectedWait {
			t.Fatalf("wait %d: expected %s, got %s", index, expectedWait, wait)
		}
	}
}

func TestRequestPacerJitterStaysInRange(t *testing.T) {
	pacer := newRequestPacer(RequestPacingConfig{
		BaseDelay:       100 * time.Millisecond,
		Jitter:          50 * time.Millisecond,
		RandomGenerator: rand.New(rand.NewSource(7)),
	})
	for iteration := 0; iteration < 50; iteration++ {
		wait := pacer.NextWait()
		if wait < 50*time.Millisecond || wait > 150*time.Millisecond {
			t.Fatalf("wait %s outside jitter range", wait)
		}
	}
}

func TestEnrichAccounts(t *testing.T) {
	accounts := []feedsettings.Account{
		{Handle: "Alpha", DisplayName: "old"},
		{Handle: "beta", Avatar: "https://keep/me.png"},
		{Handle: "gamma"},
	}
	results := map[string]Result{
		"alpha": {Profile: Profile{DisplayName: "Alpha", AvatarURL: "https://img/a.png"}},
		"beta":  {Err: ErrMissingProfile},
	}

	enriched, updated := EnrichAccounts(accounts, results)

	if updated != 1 {
		t.Fatalf("expected one updated account, got %d", updated)
	}
	if enriched[0].DisplayName != "Alpha" || enriched[0].Avatar != "https://img/a.png" {
		t.Fatalf("unexpected enrichment %+v", enriched[0])
	}
	if enriched[1].Avatar != "https://keep/me.png" {
		t.Fatalf("failed lookup must keep existing avatar")
	}
	if accounts[0].DisplayName != "old" {
		t.Fatalf("input accounts must not be modified")
	}
}
