// Package resilience provides reliability and fault tolerance patterns for
// the delivery pipeline.
//
// The package supports:
//   - Circuit breakers for external calls (feed source, delivery channel, store)
//   - Retry logic with exponential backoff and jitter
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.MessageSendConfig())
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return callDeliveryChannel()
//	})
//
//	err := retry.WithBackoff(ctx, retry.DeliveryConfig(), func() error {
//	    return performOperation()
//	})
package resilience
