package feedsettings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const (
	errMessageUnknownLaunchPlatform = "unknown launch platform"
	errMessageUnknownTweetType      = "unknown tweet type"
)

var (
	// ErrUnknownLaunchPlatform rejects a launch platform outside KnownLaunchPlatforms.
	ErrUnknownLaunchPlatform = errors.New(errMessageUnknownLaunchPlatform)
	// ErrUnknownTweetType rejects a tweet type outside TweetTypes.
	ErrUnknownTweetType = errors.New(errMessageUnknownTweetType)
)

// ValidateLaunchPlatform checks platform against KnownLaunchPlatforms, ignoring case.
func ValidateLaunchPlatform(platform string) error {
	normalized := strings.ToLower(strings.TrimSpace(platform))
	if !lo.Contains(KnownLaunchPlatforms, normalized) {
		return fmt.Errorf("%w: %q", ErrUnknownLaunchPlatform, platform)
	}
	return nil
}

// Validate checks the overrides a user submits for an account. Unset fields are
// always valid.
func (settings AccountSettings) Validate() error {
	if settings.LaunchPlatform != nil {
		if err := ValidateLaunchPlatform(*settings.LaunchPlatform); err != nil {
			return err
		}
	}
	for tweetType, override := range settings.TweetTypes {
		if !tweetType.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownTweetType, tweetType)
		}
		if override.LaunchPlatform != nil {
			if err := ValidateLaunchPlatform(*override.LaunchPlatform); err != nil {
				return err
			}
		}
	}
	return nil
}
