package deliver

import "time"

// Config controls the delivery pipeline.
type Config struct {
	// FetchLimit caps how many items a single source fetch may return.
	FetchLimit int

	// FetchCutoff drops items older than this window at fetch time.
	FetchCutoff time.Duration

	// PerGroupBudget caps how many items one filter group receives per
	// cycle. Newest items win selection; delivery runs oldest first.
	PerGroupBudget int

	// SubscriberBatchMax caps the items delivered to one subscriber in
	// a single cycle.
	SubscriberBatchMax int

	// WaveSize is the number of deliveries launched per wave.
	WaveSize int

	// WaveDelay is the pause between waves.
	WaveDelay time.Duration

	// MaxParallelDeliveries bounds in-flight deliveries inside a wave.
	MaxParallelDeliveries int

	// EmptyKeywordsMatchAll makes an empty keyword list match every
	// item instead of none.
	EmptyKeywordsMatchAll bool

	// DeliveryTimeout bounds one subscriber's delivery, including
	// recipient resolution and all sends in the batch.
	DeliveryTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FetchLimit:            15,
		FetchCutoff:           24 * time.Hour,
		PerGroupBudget:        2,
		SubscriberBatchMax:    3,
		WaveSize:              5,
		WaveDelay:             2 * time.Second,
		MaxParallelDeliveries: 5,
		EmptyKeywordsMatchAll: true,
		DeliveryTimeout:       2 * time.Minute,
	}
}

// normalized fills zero values with safe defaults so a partially populated
// Config cannot stall the pipeline.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.FetchLimit <= 0 {
		c.FetchLimit = def.FetchLimit
	}
	if c.PerGroupBudget <= 0 {
		c.PerGroupBudget = def.PerGroupBudget
	}
	if c.SubscriberBatchMax <= 0 {
		c.SubscriberBatchMax = def.SubscriberBatchMax
	}
	if c.WaveSize <= 0 {
		c.WaveSize = def.WaveSize
	}
	if c.MaxParallelDeliveries <= 0 {
		c.MaxParallelDeliveries = def.MaxParallelDeliveries
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = def.DeliveryTimeout
	}
	return c
}
