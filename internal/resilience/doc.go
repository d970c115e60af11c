// Package resilience groups the fault tolerance helpers used by alert
// delivery: a circuit breaker per delivery channel and retry with
// exponential backoff.
//
//	b := circuitbreaker.New(circuitbreaker.WebhookPolicy("slack"))
//	err := b.Do(func() error {
//	    return retry.Do(ctx, retry.WebhookPolicy(), send)
//	})
package resilience
