package startup

import (
	"context"
	"os"
	"time"

	"github.com/petchat/internal/logger"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// untilReady повторяет attempt с удвоением паузы, пока он не вернёт nil или не истечёт maxWait.
// Процесс без базы или Redis бесполезен, поэтому по истечении срока он завершается.
func untilReady[T any](what string, maxWait time.Duration, logPrefix string, attempt func(ctx context.Context) (T, error)) T {
	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	for try := 1; ; try++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		v, err := attempt(ctx)
		cancel()
		if err == nil {
			if try > 1 {
				logger.Infof("%s%s ready after %d attempts", logPrefix, what, try)
			}
			return v
		}
		if time.Now().After(deadline) {
			logger.Errorf("%s%s unavailable, gave up after %v: %v", logPrefix, what, maxWait, err)
			logger.Flush(2 * time.Second)
			os.Exit(1)
		}
		logger.Errorf("%s%s not ready (attempt %d), retry in %v: %v", logPrefix, what, try, backoff, err)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}
