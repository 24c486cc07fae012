package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alerttrail/alerttrail/internal/domain"
	"github.com/alerttrail/alerttrail/internal/metrics"
	"github.com/alerttrail/alerttrail/internal/ports"
)

// Outcome is what a Notify call reports back to its caller, for
// observability only; callers never depend on it for correctness.
type Outcome string

const (
	// OutcomeDelivered: the payload (possibly a merged batch) reached the
	// delivery gateway successfully.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeQueued: the notification was persisted for a later flush,
	// either because of quiet hours / cooldown or because the immediate
	// delivery attempt failed.
	OutcomeQueued Outcome = "queued"
	// OutcomeSuppressed: the eligibility or push-enabled gate applied;
	// nothing was queued or sent.
	OutcomeSuppressed Outcome = "suppressed"
)

// Dispatcher owns the per-user notification state machine: it decides
// whether a detection event is delivered immediately, deferred to the
// queue, or merged into a batched flush, honoring cooldown and quiet
// hours.
//
// It is a fire-and-forget subsystem from its caller's perspective: its
// own failures are logged on the injected logger, never raised, and must
// never break the business transaction that produced the event.
type Dispatcher struct {
	storage     ports.Storage
	gateway     ports.PushGateway
	eligibility ports.EligibilityChecker
	log         zerolog.Logger
	metrics     *metrics.Metrics

	// now is read exactly once per operation so quiet-hours and cooldown
	// checks inside one call can never disagree with each other.
	now func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher wires the dispatcher with its collaborators. All
// dependencies are constructor-supplied; nothing is resolved implicitly.
func NewDispatcher(
	storage ports.Storage,
	gateway ports.PushGateway,
	eligibility ports.EligibilityChecker,
	log zerolog.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		storage:     storage,
		gateway:     gateway,
		eligibility: eligibility,
		log:         log.With().Str("component", "dispatcher").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		locks:       make(map[uuid.UUID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// userLock returns the mutex serializing all state transitions for one
// user. Different users never share a lock.
func (d *Dispatcher) userLock(userID uuid.UUID) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[userID] = lock
	}
	return lock
}

// Notify routes one detection event for a user: suppressed when the user
// is not on a paid plan or has push disabled, queued during quiet hours or
// an active cooldown, otherwise flushed immediately together with any
// backlog.
func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, title, body, url string) Outcome {
	lock := d.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	eligible, err := d.eligibility.IsEligibleForNotifications(ctx, userID)
	if err != nil {
		d.log.Error().Err(err).Stringer("user_id", userID).Msg("eligibility check failed")
		return OutcomeSuppressed
	}
	if !eligible {
		d.metrics.Suppressed()
		return OutcomeSuppressed
	}

	pref, err := d.storage.GetOrCreatePreference(ctx, userID)
	if err != nil {
		d.log.Error().Err(err).Stringer("user_id", userID).Msg("preference load failed")
		return OutcomeSuppressed
	}
	if !pref.PushEnabled {
		d.metrics.Suppressed()
		return OutcomeSuppressed
	}

	now := d.now()
	item := &domain.NotificationQueueItem{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		URL:       url,
		CreatedAt: now,
	}

	// Quiet hours defer unconditionally, regardless of cooldown state.
	if window := pref.Window(); window != nil && window.Contains(now.Hour()) {
		return d.enqueue(ctx, item)
	}

	state, err := d.storage.GetOrCreateState(ctx, userID)
	if err != nil {
		d.log.Error().Err(err).Stringer("user_id", userID).Msg("state load failed")
		return OutcomeSuppressed
	}
	cooldown := time.Duration(pref.CooldownMinutes) * time.Minute
	if state.LastPushAt != nil && now.Sub(*state.LastPushAt) < cooldown {
		return d.enqueue(ctx, item)
	}

	// Persist before the delivery attempt so a gateway failure loses
	// nothing. When the append itself fails the item was never stored,
	// which is a suppression, not a queue.
	if err := d.storage.AppendQueueItem(ctx, item); err != nil {
		d.log.Error().Err(err).Stringer("user_id", userID).Msg("queue append failed")
		return OutcomeSuppressed
	}
	if d.flush(ctx, userID, now) {
		d.metrics.Delivered()
		return OutcomeDelivered
	}
	// The item is already a queue row, so a failed flush leaves it
	// queued for the next reconciliation.
	d.metrics.Queued()
	return OutcomeQueued
}

// FlushIfNeeded releases a quiet-hours or cooldown backlog once the
// blocking condition has lapsed. Safe on an empty queue and safe to call
// concurrently with Notify for the same user.
func (d *Dispatcher) FlushIfNeeded(ctx context.Context, userID uuid.UUID) {
	lock := d.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	pref, err := d.storage.GetOrCreatePreference(ctx, userID)
	if err != nil {
		d.log.Error().Err(err).Stringer("user_id", userID).Msg("preference load failed")
		return
	}

	now := d.now()
	if window := pref.Window(); window != nil && window.Contains(now.Hour()) {
		return
	}

	if d.flush(ctx, userID, now) {
		d.metrics.Delivered()
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, item *domain.NotificationQueueItem) Outcome {
	if err := d.storage.AppendQueueItem(ctx, item); err != nil {
		d.log.Error().Err(err).Stringer("user_id", item.UserID).Msg("queue append failed")
		return OutcomeSuppressed
	}
	d.metrics.Queued()
	return OutcomeQueued
}

// flush attempts to deliver the user's whole backlog as one payload. A
// failed gateway call loses nothing: the rows stay put and the next flush
// re-sends the accumulated batch (at-least-once delivery). Returns true
// only when the gateway accepted the payload and the queue rows were
// removed.
func (d *Dispatcher) flush(ctx context.Context, userID uuid.UUID, now time.Time) bool {
	items, err := d.storage.ListQueueItems(ctx, userID)
	if err != nil {
		d.log.Error().Err(err).Stringer("user_id", userID).Msg("queue list failed")
		return false
	}
	if len(items) == 0 {
		return false
	}

	sub, err := d.storage.GetSubscription(ctx, userID)
	if err != nil {
		d.log.Error().Err(err).Stringer("user_id", userID).Msg("subscription lookup failed")
		return false
	}
	if sub == nil {
		// Nothing to deliver to; the queue stays put until a
		// subscription exists.
		return false
	}

	payload := batchPayload(items)
	if err := d.gateway.Deliver(ctx, sub, payload); err != nil {
		d.metrics.DeliveryFailed()
		d.log.Warn().Err(err).
			Stringer("user_id", userID).
			Int("batch_size", len(items)).
			Msg("push delivery failed, keeping queue")
		return false
	}

	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := d.storage.CompleteFlush(ctx, userID, ids, now); err != nil {
		// Delivery happened but bookkeeping failed; the next flush may
		// re-send (at-least-once, never silently lost).
		d.log.Error().Err(err).Stringer("user_id", userID).Msg("flush completion failed")
		return false
	}

	d.log.Info().
		Stringer("user_id", userID).
		Int("batch_size", len(items)).
		Msg("push delivered")
	return true
}

// batchPayload synthesizes the delivered payload: a single item goes out
// verbatim, a larger batch collapses into one summary pointing at the
// newest item's URL.
func batchPayload(items []domain.NotificationQueueItem) domain.PushPayload {
	newest := items[len(items)-1]
	if len(items) == 1 {
		return domain.PushPayload{Title: newest.Title, Body: newest.Body, URL: newest.URL}
	}
	return domain.PushPayload{
		Title: "AlertTrail PRO",
		Body:  fmt.Sprintf("%d detecciones nuevas", len(items)),
		URL:   newest.URL,
	}
}
