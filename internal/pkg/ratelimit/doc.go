// Package ratelimit provides keyed token-bucket limiters.
//
// The backend client keys its limiter by request topic so that a burst of
// status queries cannot starve retry and connect commands:
//
//	rl := ratelimit.New(ratelimit.Config{RequestsPerSecond: 20, Burst: 10})
//	if err := rl.Wait(ctx, topic); err != nil {
//		return err
//	}
package ratelimit
