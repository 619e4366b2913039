// Package dispatch fans records out to a remote call function over a fixed
// pool of workers and gathers exactly one outcome per record.
//
// Every call attempt first takes a slot from a rolling-window rate limiter,
// then runs under its own timeout. Transient failures (timeouts, network
// errors, quota, 5xx) are retried with capped exponential backoff; anything
// else, or exhausting the retry budget, turns into a Failure outcome for
// that record only. Sibling records are unaffected unless FailFast is set,
// in which case the first real failure cancels the remaining work and the
// records that never started receive a Cancelled failure.
//
// Example usage:
//
//	d, err := dispatch.New[client.Result](dispatch.DefaultConfig(), nil, state, logger)
//	outcomes, err := d.Dispatch(ctx, batch, call)
//
// Outcomes are returned in input order regardless of completion order.
package dispatch
