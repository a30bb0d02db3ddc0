package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

// ConcurrencyTestConfig holds parameters for concurrency tests.
type ConcurrencyTestConfig struct {
	// NumGoroutines is the number of concurrent operations to run.
	// Default: 20
	NumGoroutines int

	// Timeout bounds each operation; an operation that exceeds it is counted
	// as a potential deadlock.
	// Default: 3 seconds
	Timeout time.Duration
}

// ConcurrencyTestResult captures the outcome of concurrency tests.
type ConcurrencyTestResult struct {
	SuccessCount int
	ErrorCount   int
	// TimeoutCount counts operations that never finished within Timeout.
	TimeoutCount int
	MaxDuration  time.Duration
}

// RunConcurrent executes op NumGoroutines times in parallel, all released at
// once, and reports how many succeeded, failed, or hung.
//
// Example:
//
//	result := testutil.RunConcurrent(ctx, t, testutil.ConcurrencyTestConfig{NumGoroutines: 2},
//	    func(i int) string { return names[i] },
//	    func(ctx context.Context, name string) error {
//	        _, err := companies.Insert(ctx, name)
//	        return err
//	    },
//	)
//	assert.Zero(t, result.TimeoutCount)
func RunConcurrent[T any](
	ctx context.Context,
	t *testing.T,
	config ConcurrencyTestConfig,
	setupData func(i int) T,
	execute func(ctx context.Context, data T) error,
) ConcurrencyTestResult {
	t.Helper()

	if config.NumGoroutines == 0 {
		config.NumGoroutines = 20
	}
	if config.Timeout == 0 {
		config.Timeout = 3 * time.Second
	}

	type opResult struct {
		timeout  bool
		duration time.Duration
		err      error
	}

	results := make(chan opResult, config.NumGoroutines)
	start := make(chan struct{})
	var wg sync.WaitGroup

	for i := range config.NumGoroutines {
		data := setupData(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			opCtx, cancel := context.WithTimeout(ctx, config.Timeout)
			defer cancel()

			begin := time.Now()
			done := make(chan error, 1)
			go func() {
				done <- execute(opCtx, data)
			}()

			select {
			case err := <-done:
				results <- opResult{duration: time.Since(begin), err: err}
			case <-opCtx.Done():
				results <- opResult{timeout: true, duration: time.Since(begin), err: opCtx.Err()}
			}
		}()
	}

	close(start)
	wg.Wait()
	close(results)

	var out ConcurrencyTestResult
	for r := range results {
		switch {
		case r.timeout:
			out.TimeoutCount++
			t.Logf("operation timed out after %v (potential deadlock)", r.duration)
		case r.err != nil:
			out.ErrorCount++
			t.Logf("operation failed: %v", r.err)
		default:
			out.SuccessCount++
		}
		out.MaxDuration = max(out.MaxDuration, r.duration)
	}
	return out
}
