package deliver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"feedrelay/internal/domain/entity"
	"feedrelay/internal/infra/cache"
	"feedrelay/internal/infra/channel"
	"feedrelay/internal/observability/logging"
	"feedrelay/internal/resilience/circuitbreaker"
	"feedrelay/internal/resilience/retry"
	"feedrelay/pkg/ratelimit"
)

// Service orchestrates one delivery cycle: load subscribers, fetch items,
// select per filter group, and deliver in rate-limited waves.
type Service struct {
	cfg     Config
	store   SubscriptionStore
	fetcher *Fetcher
	channel DeliveryChannel
	preview PreviewFetcher
	dedup   *Deduplicator
	cache   *cache.Cache
	limiter *ratelimit.Limiter

	lookupRetry retry.Config
	sendRetry   retry.Config
	sendBreaker *circuitbreaker.CircuitBreaker

	metrics Metrics
	clock   ratelimit.Clock

	// running guards against overlapping cycles when a run outlasts the
	// poll interval.
	running atomic.Bool
}

// NewService creates a Service. preview may be nil to deliver without link
// previews; nil clock and metrics default to system clock and no-op.
func NewService(
	cfg Config,
	store SubscriptionStore,
	fetcher *Fetcher,
	deliveryChannel DeliveryChannel,
	preview PreviewFetcher,
	responseCache *cache.Cache,
	limiter *ratelimit.Limiter,
	metrics Metrics,
	clock ratelimit.Clock,
) *Service {
	if clock == nil {
		clock = &ratelimit.SystemClock{}
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &Service{
		cfg:         cfg.normalized(),
		store:       store,
		fetcher:     fetcher,
		channel:     deliveryChannel,
		preview:     preview,
		dedup:       NewDeduplicator(),
		cache:       responseCache,
		limiter:     limiter,
		lookupRetry: retry.DeliveryConfig(),
		sendRetry:   retry.DeliveryConfig(),
		sendBreaker: circuitbreaker.New(circuitbreaker.MessageSendConfig()),
		metrics:     metrics,
		clock:       clock,
	}
}

// delivery is one subscriber's batch for the current cycle, items ordered
// oldest first.
type delivery struct {
	subscriber entity.Subscriber
	items      []entity.Item
}

// RunCycle executes one full delivery cycle. A cycle already in progress
// makes this call a logged no-op rather than a queued run.
func (s *Service) RunCycle(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("delivery cycle still running, skipping this trigger")
		s.metrics.RecordCycle(CycleOutcomeSkipped, 0)
		return
	}
	defer s.running.Store(false)

	cycleID := uuid.New().String()
	start := s.clock.Now()
	log := logging.WithCycleID(slog.Default(), cycleID)
	log.Info("delivery cycle started")

	subscribers, err := s.loadSubscribers(ctx)
	if err != nil {
		// Without the subscriber list there is nothing to deliver; the
		// next cycle retries from scratch.
		log.Error("subscriber load failed, cycle degraded to no-op",
			slog.Any("error", err))
		s.metrics.RecordCycle(CycleOutcomeDegraded, s.clock.Now().Sub(start))
		return
	}

	groups := groupByFilter(subscribers)
	if len(groups) == 0 {
		log.Info("no subscribed recipients, nothing to deliver")
		s.metrics.RecordCycle(CycleOutcomeOK, s.clock.Now().Sub(start))
		return
	}

	deliveries := s.selectDeliveries(ctx, log, groups)
	s.metrics.SetDedupSize(s.dedup.Size())

	if len(deliveries) == 0 {
		log.Info("no new matching items this cycle")
		s.metrics.RecordCycle(CycleOutcomeOK, s.clock.Now().Sub(start))
		return
	}

	s.deliverInWaves(ctx, log, deliveries)

	log.Info("delivery cycle finished",
		slog.Int("deliveries", len(deliveries)),
		slog.Duration("duration", s.clock.Now().Sub(start)))
	s.metrics.RecordCycle(CycleOutcomeOK, s.clock.Now().Sub(start))
}

// subscriberRecord is the cached wire form of one subscriber.
type subscriberRecord struct {
	Subscribed bool     `json:"subscribed"`
	Tags       []string `json:"tags"`
}

// loadSubscribers returns the full subscriber map, served from the response
// cache when fresh. A malformed cached payload is discarded and the store
// is read directly.
func (s *Service) loadSubscribers(ctx context.Context) (map[string]entity.Subscriber, error) {
	payload, err := s.cache.GetOrCompute(ctx, cache.CategorySubscribers, "all", ratelimit.CategoryStoreRead,
		func(ctx context.Context) (string, error) {
			subs, err := s.store.ListAll(ctx)
			if err != nil {
				return "", fmt.Errorf("list subscribers: %w", err)
			}
			return encodeSubscribers(subs)
		})
	if err != nil {
		return nil, err
	}

	subs, err := decodeSubscribers(payload)
	if err == nil {
		return subs, nil
	}

	slog.Warn("discarding malformed cached subscriber payload",
		slog.Any("error", err))
	if delErr := s.cache.Delete(ctx, cache.CategorySubscribers, "all"); delErr != nil {
		slog.Warn("cached subscriber payload delete failed",
			slog.Any("error", delErr))
	}
	// The direct read pays the same admission cost as the cached path.
	if err := s.limiter.AwaitSlot(ctx, ratelimit.CategoryStoreRead); err != nil {
		return nil, fmt.Errorf("await store-read slot: %w", err)
	}
	return s.store.ListAll(ctx)
}

func encodeSubscribers(subs map[string]entity.Subscriber) (string, error) {
	records := make(map[string]subscriberRecord, len(subs))
	for id, sub := range subs {
		records[id] = subscriberRecord{Subscribed: sub.Subscribed, Tags: sub.Keywords}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode subscribers: %w", err)
	}
	return string(data), nil
}

func decodeSubscribers(payload string) (map[string]entity.Subscriber, error) {
	var records map[string]subscriberRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("decode subscribers: %w", err)
	}
	subs := make(map[string]entity.Subscriber, len(records))
	for id, rec := range records {
		subs[id] = entity.Subscriber{
			RecipientID: id,
			Subscribed:  rec.Subscribed,
			Keywords:    entity.NormalizeKeywords(rec.Tags),
		}
	}
	return subs, nil
}

// filterGroup collects the subscribers sharing one keyword set so the set
// is matched against the feed once, not per subscriber.
type filterGroup struct {
	keywords    []string
	subscribers []entity.Subscriber
}

func groupByFilter(subs map[string]entity.Subscriber) map[string]*filterGroup {
	groups := make(map[string]*filterGroup)
	for _, sub := range subs {
		if !sub.Subscribed {
			continue
		}
		key := sub.FilterKey()
		g, ok := groups[key]
		if !ok {
			g = &filterGroup{keywords: sub.Keywords}
			groups[key] = g
		}
		g.subscribers = append(g.subscribers, sub)
	}
	return groups
}

// selectDeliveries fetches, deduplicates, matches, and applies the
// per-group budget and batch cap, returning one delivery per subscriber
// with new items.
//
// Batched items are marked seen before any send: an item is attempted at
// most once per recipient even when its delivery later fails.
func (s *Service) selectDeliveries(ctx context.Context, log *slog.Logger, groups map[string]*filterGroup) []delivery {
	var shared []entity.Item
	if !s.fetcher.FiltersServerSide() {
		shared = s.fetcher.Fetch(ctx, nil)
	}

	// Seen-marking is deferred until every group has selected: a group
	// selecting an item must not hide it from another group in the same
	// cycle, only from later cycles.
	var deliveries []delivery
	var sent []entity.Item
	totalSelected := 0
	for _, g := range groups {
		items := shared
		if s.fetcher.FiltersServerSide() {
			items = s.fetcher.Fetch(ctx, g.keywords)
		}

		batch := s.selectForGroup(items, g.keywords)
		if len(batch) == 0 {
			continue
		}
		// Only items that enter the batch are committed as seen; anything
		// cut by the batch cap stays eligible for the next cycle.
		if len(batch) > s.cfg.SubscriberBatchMax {
			batch = batch[:s.cfg.SubscriberBatchMax]
		}
		sent = append(sent, batch...)
		totalSelected += len(batch)

		for _, sub := range g.subscribers {
			deliveries = append(deliveries, delivery{subscriber: sub, items: batch})
		}
	}

	s.dedup.MarkSeen(sent)

	if totalSelected > 0 {
		log.Info("items selected for delivery",
			slog.Int("items", totalSelected),
			slog.Int("groups", len(groups)))
		s.metrics.RecordItemsSelected(totalSelected)
	}
	return deliveries
}

// selectForGroup picks the newest unseen matching items up to the group
// budget and returns them oldest first for delivery.
func (s *Service) selectForGroup(items []entity.Item, keywords []string) []entity.Item {
	// Sources return items newest first, so the first matches are the
	// newest.
	var selected []entity.Item
	for _, item := range s.dedup.Unseen(items) {
		if len(selected) >= s.cfg.PerGroupBudget {
			break
		}
		if !Matches(&item, keywords, s.cfg.EmptyKeywordsMatchAll) {
			continue
		}
		selected = append(selected, item)
	}
	if len(selected) == 0 {
		return nil
	}

	// Reverse so recipients read the thread in publication order.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

// deliverInWaves runs deliveries in fixed-size waves with a pause between
// waves, bounding parallelism inside each wave. Individual delivery
// failures never abort the wave.
func (s *Service) deliverInWaves(ctx context.Context, log *slog.Logger, deliveries []delivery) {
	for start := 0; start < len(deliveries); start += s.cfg.WaveSize {
		if start > 0 {
			select {
			case <-time.After(s.cfg.WaveDelay):
			case <-ctx.Done():
				log.Warn("delivery cycle interrupted between waves",
					slog.Int("delivered_waves", start/s.cfg.WaveSize))
				return
			}
		}

		end := start + s.cfg.WaveSize
		if end > len(deliveries) {
			end = len(deliveries)
		}

		g, waveCtx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.MaxParallelDeliveries)
		for _, d := range deliveries[start:end] {
			d := d
			g.Go(func() error {
				s.deliverOne(waveCtx, log, d)
				return nil
			})
		}
		// Workers always return nil; failures are recorded per delivery.
		_ = g.Wait()
	}
}

// deliverOne resolves the recipient and sends the batch oldest first.
//
// A permanent rejection abandons the recipient's remaining sends for this
// cycle; any other exhausted failure abandons only the failing item.
func (s *Service) deliverOne(ctx context.Context, log *slog.Logger, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during delivery",
				slog.String("recipient_id", d.subscriber.RecipientID),
				slog.Any("panic", r))
			s.metrics.RecordDeliveryAbandoned(AbandonReasonPanic)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	defer cancel()

	handle, err := s.resolveHandle(ctx, d.subscriber.RecipientID)
	if err != nil {
		reason := AbandonReasonRecipientResolve
		if channel.IsPermanentRejection(err) {
			reason = AbandonReasonPermanentRejection
		}
		log.Warn("recipient resolution failed, abandoning delivery",
			slog.String("recipient_id", d.subscriber.RecipientID),
			slog.Any("error", err))
		s.metrics.RecordDeliveryAbandoned(reason)
		return
	}

	for _, item := range d.items {
		if err := s.sendItem(ctx, handle, item); err != nil {
			if channel.IsPermanentRejection(err) {
				log.Warn("recipient rejected message, abandoning remaining batch",
					slog.String("recipient_id", d.subscriber.RecipientID),
					slog.Any("error", err))
				s.metrics.RecordDeliveryAbandoned(AbandonReasonPermanentRejection)
				return
			}

			reason := AbandonReasonRetriesExhausted
			if ctx.Err() != nil {
				reason = AbandonReasonTimeout
			}
			log.Warn("item delivery failed",
				slog.String("recipient_id", d.subscriber.RecipientID),
				slog.String("item_id", item.ID),
				slog.Any("error", err))
			s.metrics.RecordDeliveryAbandoned(reason)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		s.metrics.RecordMessageSent()
	}
}

// resolveHandle returns the cached delivery handle for a recipient,
// resolving it through the channel on a miss.
func (s *Service) resolveHandle(ctx context.Context, recipientID string) (string, error) {
	var handle string
	err := retry.WithBackoff(ctx, s.lookupRetry, func() error {
		var err error
		handle, err = s.cache.GetOrCompute(ctx, cache.CategoryRecipientHandle, recipientID, ratelimit.CategoryRecipientLookup,
			func(ctx context.Context) (string, error) {
				return s.channel.ResolveRecipient(ctx, recipientID)
			})
		return err
	})
	return handle, err
}

// sendItem delivers one item: optional link preview, then the rate-limited
// send behind the message-send circuit breaker, under retry with backoff.
func (s *Service) sendItem(ctx context.Context, handle string, item entity.Item) error {
	preview := s.fetchPreview(ctx, item)

	body := item.Link()
	if preview.Description != "" {
		body = preview.Description + "\n\n" + body
	}

	return retry.WithBackoff(ctx, s.sendRetry, func() error {
		if err := s.limiter.AwaitSlot(ctx, ratelimit.CategoryMessageSend); err != nil {
			return err
		}
		_, err := s.sendBreaker.Execute(func() (interface{}, error) {
			return nil, s.channel.Send(ctx, handle, item.Title, body, preview.ImageURL)
		})
		return err
	})
}

// fetchPreview returns the item's cached link preview. Preview failures
// degrade to an empty preview, never to a failed delivery.
func (s *Service) fetchPreview(ctx context.Context, item entity.Item) LinkPreview {
	if s.preview == nil || item.URL == "" {
		return LinkPreview{}
	}

	payload, err := s.cache.GetOrCompute(ctx, cache.CategoryPreview, item.URL, ratelimit.CategoryPreviewFetch,
		func(ctx context.Context) (string, error) {
			p, err := s.preview.Fetch(ctx, item.URL)
			if err != nil {
				return "", err
			}
			data, err := json.Marshal(p)
			if err != nil {
				return "", fmt.Errorf("encode preview: %w", err)
			}
			return string(data), nil
		})
	if err != nil {
		slog.Debug("link preview unavailable",
			slog.String("url", item.URL),
			slog.Any("error", err))
		return LinkPreview{}
	}

	var p LinkPreview
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		slog.Warn("discarding malformed cached preview",
			slog.String("url", item.URL),
			slog.Any("error", err))
		if delErr := s.cache.Delete(ctx, cache.CategoryPreview, item.URL); delErr != nil {
			slog.Warn("cached preview delete failed", slog.Any("error", delErr))
		}
		return LinkPreview{}
	}
	return p
}
