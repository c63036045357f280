// Package resilience protects slow collaborators from being overrun.
//
// RateLimiter is a token bucket. Wait blocks until the requested tokens are
// available, so a caller inside a pipeline stage slows down and the mailbox
// backpressure carries the delay upstream:
//
//	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{Name: "serial", Rate: 11520})
//	if err := rl.WaitN(ctx, len(frame)); err != nil {
//	    return err
//	}
//	_, err := port.Write(frame)
package resilience
