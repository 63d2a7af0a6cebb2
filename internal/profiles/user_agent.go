package profiles

import (
	"math/rand"
)

const (
	// ChromeUserAgentMacOSSonoma141 identifies a recent Chrome build on macOS Sonoma.
	ChromeUserAgentMacOSSonoma141 = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.846.0 Safari/537.36"
	// ChromeUserAgentWindows141 identifies a recent Chrome build on Windows 10.
	ChromeUserAgentWindows141 = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.846.0 Safari/537.36"
	// ChromeUserAgentLinux141 identifies a recent Chrome build on Linux.
	ChromeUserAgentLinux141 = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.846.0 Safari/537.36"
)

var defaultUserAgents = []string{
	ChromeUserAgentMacOSSonoma141,
	ChromeUserAgentWindows141,
	ChromeUserAgentLinux141,
}

// UserAgentProvider picks the user agent sent with each profile request.
type UserAgentProvider struct {
	userAgents []string
}

// NewUserAgentProvider constructs a provider; an empty list falls back to the built-in agents.
func NewUserAgentProvider(userAgents []string) UserAgentProvider {
	if len(userAgents) == 0 {
		userAgents = defaultUserAgents
	}
	return UserAgentProvider{userAgents: append([]string{}, userAgents...)}
}

// RandomAgent returns one of the provider's agents. A nil generator uses the
// package-level math/rand functions.
func (provider UserAgentProvider) RandomAgent(randomGenerator *rand.Rand) string {
	if len(provider.userAgents) == 0 {
		return ""
	}
	if randomGenerator != nil {
		return provider.userAgents[randomGenerator.Intn(len(provider.userAgents))]
	}
	return provider.userAgents[rand.Intn(len(provider.userAgents))]
}
