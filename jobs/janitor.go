package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper drops expired entries and reports how many went.
type Sweeper interface {
	Sweep() int
}

// StartCacheJanitor sweeps c every interval until ctx is done. The returned
// channel closes once the loop has exited.
func StartCacheJanitor(ctx context.Context, c Sweeper, interval time.Duration, log zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	log = log.With().Str("component", "janitor").Logger()

	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					log.Debug().Int("evicted", n).Msg("swept expired cache entries")
				}
			}
		}
	}()
	return done
}
