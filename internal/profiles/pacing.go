package profiles

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RequestPacingConfig spaces out profile requests so batches do not hammer the profile host.
type RequestPacingConfig struct {
	BaseDelay       time.Duration
	Jitter          time.Duration
	BurstSize       int
	BurstRest       time.Duration
	BurstRestJitter time.Duration
	RandomGenerator *rand.Rand
}

type requestPacer struct {
	baseDelay       time.Duration
	jitter          time.Duration
	burstSize       int
	burstRest       time.Duration
	burstRestJitter time.Duration

	randomGenerator *rand.Rand
	mutex           sync.Mutex
	processed       int
}

func newRequestPacer(configuration RequestPacingConfig) *requestPacer {
	randomGenerator := configuration.RandomGenerator
	if randomGenerator == nil {
		randomGenerator = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &requestPacer{
		baseDelay:       max(configuration.BaseDelay, 0),
		jitter:          configuration.Jitter,
		burstSize:       configuration.BurstSize,
		burstRest:       max(configuration.BurstRest, 0),
		burstRestJitter: configuration.BurstRestJitter,
		randomGenerator: randomGenerator,
	}
}

// NextWait returns how long to pause before the next request, including the
// rest taken after every full burst.
func (pacer *requestPacer) NextWait() time.Duration {
	pacer.mutex.Lock()
	defer pacer.mutex.Unlock()

	pacer.processed++
	wait := pacer.sampleDuration(pacer.baseDelay, pacer.jitter)
	if pacer.burstSize > 0 && pacer.processed%pacer.burstSize == 0 {
		wait += pacer.sampleDuration(pacer.burstRest, pacer.burstRestJitter)
	}
	return wait
}

func (pacer *requestPacer) sampleDuration(baseDuration time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseDuration
	}
	offset := (pacer.randomGenerator.Float64()*2 - 1) * float64(jitter)
	return max(time.Duration(float64(baseDuration)+offset), 0)
}

func waitForDuration(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
