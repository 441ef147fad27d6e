// Package lifecycle creates sandboxes, schedules their expiry, and tears
// them down exactly once, whether by TTL or by request.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"sandplane/internal/events"
	"sandplane/internal/gateway"
	"sandplane/internal/scheduler"
	"sandplane/internal/store"
)

// JobPrefix is prepended to a sandbox name to form its expiry job id.
const JobPrefix = "terminate-"

// JobID returns the expiry job id for a sandbox name.
func JobID(name string) string {
	return JobPrefix + name
}

// Scheduler is the part of scheduler.Scheduler the manager relies on.
type Scheduler interface {
	Schedule(jobID string, runAt time.Time, fn scheduler.Func, payload string)
	Cancel(jobID string) bool
	ListPending() []scheduler.Job
}

// Config holds lifecycle settings.
type Config struct {
	// TTL is added to the creation time to get the expiry time.
	TTL time.Duration
	// GatewayTimeout bounds each provisioning call. Zero means no extra deadline.
	GatewayTimeout time.Duration
	// DestroyRetries is how many times a failed expiry teardown is retried.
	DestroyRetries int
	// RetryBackoff is the delay before each retry.
	RetryBackoff time.Duration
}

// Manager owns every state transition of a sandbox.
type Manager struct {
	gateway   gateway.Gateway
	store     store.SandboxStore
	scheduler Scheduler
	events    events.Publisher
	clock     clock.PassiveClock
	config    Config
	logger    *slog.Logger

	locks    cmap.ConcurrentMap[string, *nameLock]
	attempts cmap.ConcurrentMap[string, int]

	tracer  trace.Tracer
	metrics managerMetrics
}

type managerMetrics struct {
	created         metric.Int64Counter
	terminated      metric.Int64Counter
	expired         metric.Int64Counter
	destroyFailures metric.Int64Counter
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for creation and expiry timestamps.
func WithClock(c clock.PassiveClock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithPublisher sets the event publisher. Events are dropped by default.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.events = p }
}

// New creates a Manager.
func New(gw gateway.Gateway, st store.SandboxStore, sched Scheduler, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Minute
	}

	m := &Manager{
		gateway:   gw,
		store:     st,
		scheduler: sched,
		events:    events.Noop{},
		clock:     clock.RealClock{},
		config:    cfg,
		logger:    logger,
		locks:     cmap.New[*nameLock](),
		attempts:  cmap.New[int](),
		tracer:    otel.Tracer("sandplane/lifecycle"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initMetrics()
	return m
}

func (m *Manager) initMetrics() {
	meter := otel.Meter("sandplane/lifecycle")
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			m.logger.Warn("failed to register counter", "metric", name, "error", err)
		}
		return c
	}
	m.metrics = managerMetrics{
		created:         counter("sandplane.sandboxes.created", "Sandboxes provisioned"),
		terminated:      counter("sandplane.sandboxes.terminated", "Sandboxes terminated on request"),
		expired:         counter("sandplane.sandboxes.expired", "Sandboxes terminated by TTL"),
		destroyFailures: counter("sandplane.sandboxes.destroy_failures", "Failed teardown attempts"),
	}
}

func add(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}

// nameLock serializes operations on one sandbox name. refs counts holders
// and waiters and is only touched under the map's shard lock, so the entry
// can be dropped once nobody needs it.
type nameLock struct {
	sync.Mutex
	refs int
}

func (m *Manager) acquire(name string) *nameLock {
	return m.locks.Upsert(name, nil, func(exists bool, cur, _ *nameLock) *nameLock {
		if !exists {
			cur = &nameLock{}
		}
		cur.refs++
		return cur
	})
}

func (m *Manager) release(name string) {
	m.locks.RemoveCb(name, func(_ string, cur *nameLock, exists bool) bool {
		if !exists {
			return false
		}
		cur.refs--
		return cur.refs == 0
	})
}

// lock blocks until name is held and returns the matching unlock.
func (m *Manager) lock(name string) func() {
	l := m.acquire(name)
	l.Lock()
	return func() {
		l.Unlock()
		m.release(name)
	}
}

// tryLock is lock without waiting. ok is false when name is held elsewhere.
func (m *Manager) tryLock(name string) (unlock func(), ok bool) {
	l := m.acquire(name)
	if !l.TryLock() {
		m.release(name)
		return nil, false
	}
	return func() {
		l.Unlock()
		m.release(name)
	}, true
}

func (m *Manager) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.config.GatewayTimeout > 0 {
		return context.WithTimeout(ctx, m.config.GatewayTimeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) startSpan(ctx context.Context, op, name string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "lifecycle."+op,
		trace.WithAttributes(attribute.String("sandbox.name", name)),
	)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (m *Manager) publish(ctx context.Context, e events.Event) {
	e.At = m.clock.Now().UTC()
	if err := m.events.Publish(ctx, e); err != nil {
		m.logger.Warn("failed to publish event", "type", e.Type, "sandbox", e.Name, "error", err)
	}
}

// Create provisions a sandbox, records it and schedules its expiry.
// It fails with store.ErrNameConflict while another ACTIVE sandbox or an
// in-flight request holds the name.
func (m *Manager) Create(ctx context.Context, name string) (*store.Sandbox, error) {
	ctx, span := m.startSpan(ctx, "Create", name)
	defer span.End()

	if err := gateway.ValidateName(name); err != nil {
		return nil, fail(span, err)
	}

	unlock, ok := m.tryLock(name)
	if !ok {
		return nil, fail(span, fmt.Errorf("%w: sandbox %s is being modified", store.ErrNameConflict, name))
	}
	defer unlock()

	existing, err := m.store.FindByName(ctx, name)
	switch {
	case err == nil && existing.IsActive():
		return nil, fail(span, fmt.Errorf("%w: sandbox %s is already active", store.ErrNameConflict, name))
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, fail(span, fmt.Errorf("failed to look up sandbox %s: %w", name, err))
	}

	gctx, cancel := m.gatewayContext(ctx)
	handle, _, err := m.gateway.Create(gctx, name)
	cancel()
	if err != nil {
		m.logger.Error("provisioning failed", "sandbox", name, "error", err)
		return nil, fail(span, err)
	}

	now := m.clock.Now().UTC()
	sb := &store.Sandbox{
		Name:       name,
		Status:     store.SandboxStatusActive,
		Handle:     string(handle),
		CreatedAt:  now,
		ExpiryTime: now.Add(m.config.TTL),
	}
	if err := m.store.Insert(ctx, sb); err != nil {
		m.rollback(ctx, name, handle)
		return nil, fail(span, fmt.Errorf("failed to record sandbox %s: %w", name, err))
	}

	m.attempts.Remove(name)
	m.scheduler.Schedule(JobID(name), sb.ExpiryTime, m.Expire, name)

	m.logger.Info("sandbox created", "sandbox", name, "handle", sb.Handle, "expiry_time", sb.ExpiryTime)
	add(ctx, m.metrics.created)
	m.publish(ctx, events.Event{
		Type:   events.TypeCreated,
		Name:   name,
		Handle: sb.Handle,
		Status: string(sb.Status),
	})
	return sb, nil
}

// rollback tears down infrastructure that could not be recorded.
func (m *Manager) rollback(ctx context.Context, name string, handle gateway.Handle) {
	gctx, cancel := m.gatewayContext(context.WithoutCancel(ctx))
	defer cancel()
	if _, err := m.gateway.Destroy(gctx, handle); err != nil {
		m.logger.Error("failed to roll back unrecorded sandbox", "sandbox", name, "handle", string(handle), "error", err)
		return
	}
	m.logger.Warn("rolled back unrecorded sandbox", "sandbox", name, "handle", string(handle))
}

// destroy calls the gateway for sb and marks it TERMINATED on success.
// Caller holds the name lock.
func (m *Manager) destroy(ctx context.Context, sb *store.Sandbox) error {
	gctx, cancel := m.gatewayContext(ctx)
	_, err := m.gateway.Destroy(gctx, gateway.Handle(sb.Handle))
	cancel()
	if err != nil {
		add(ctx, m.metrics.destroyFailures)
		m.publish(ctx, events.Event{
			Type:   events.TypeDestroyFailed,
			Name:   sb.Name,
			Handle: sb.Handle,
			Status: string(sb.Status),
			Error:  err.Error(),
		})
		return err
	}

	if err := m.store.UpdateStatus(ctx, sb.Name, store.SandboxStatusTerminated); err != nil {
		return fmt.Errorf("failed to mark sandbox %s terminated: %w", sb.Name, err)
	}
	m.attempts.Remove(sb.Name)
	return nil
}

// Terminate tears a sandbox down ahead of its expiry. Unknown and already
// terminated sandboxes succeed without side effects. On teardown failure the
// sandbox stays ACTIVE and the error wraps gateway.ErrDeprovisionFailure.
func (m *Manager) Terminate(ctx context.Context, name string) error {
	ctx, span := m.startSpan(ctx, "Terminate", name)
	defer span.End()

	unlock := m.lock(name)
	defer unlock()

	sb, err := m.store.FindByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fail(span, fmt.Errorf("failed to look up sandbox %s: %w", name, err))
	}
	if !sb.IsActive() {
		return nil
	}

	if err := m.destroy(ctx, sb); err != nil {
		m.logger.Error("manual termination failed", "sandbox", name, "error", err)
		return fail(span, err)
	}
	m.scheduler.Cancel(JobID(name))

	m.logger.Info("sandbox terminated", "sandbox", name)
	add(ctx, m.metrics.terminated)
	m.publish(ctx, events.Event{
		Type:   events.TypeTerminated,
		Name:   name,
		Handle: sb.Handle,
		Status: string(store.SandboxStatusTerminated),
	})
	return nil
}

// Expire is the scheduled expiry handler. It re-reads the record and does
// nothing unless the sandbox is still ACTIVE and due.
func (m *Manager) Expire(ctx context.Context, name string) error {
	ctx, span := m.startSpan(ctx, "Expire", name)
	defer span.End()

	unlock := m.lock(name)
	defer unlock()

	sb, err := m.store.FindByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("expiry fired for unknown sandbox", "sandbox", name)
		return nil
	}
	if err != nil {
		return fail(span, fmt.Errorf("failed to look up sandbox %s: %w", name, err))
	}
	if !sb.IsActive() {
		m.logger.Info("expiry skipped, sandbox already terminated", "sandbox", name)
		return nil
	}

	now := m.clock.Now()
	if now.Before(sb.ExpiryTime) {
		// Stale job for an earlier record under the same name.
		m.scheduler.Schedule(JobID(name), sb.ExpiryTime, m.Expire, name)
		return nil
	}

	if err := m.destroy(ctx, sb); err != nil {
		attempt, _ := m.attempts.Get(name)
		if attempt < m.config.DestroyRetries {
			m.attempts.Set(name, attempt+1)
			retryAt := now.Add(m.config.RetryBackoff)
			m.scheduler.Schedule(JobID(name), retryAt, m.Expire, name)
			m.logger.Warn("expiry teardown failed, retry scheduled",
				"sandbox", name, "attempt", attempt+1, "retry_at", retryAt, "error", err)
		} else {
			m.attempts.Remove(name)
			m.logger.Error("expiry teardown failed, sandbox left active", "sandbox", name, "handle", sb.Handle, "error", err)
		}
		return fail(span, err)
	}

	m.logger.Info("sandbox expired", "sandbox", name)
	add(ctx, m.metrics.expired)
	m.publish(ctx, events.Event{
		Type:   events.TypeExpired,
		Name:   name,
		Handle: sb.Handle,
		Status: string(store.SandboxStatusTerminated),
	})
	return nil
}

// Get returns the newest record for name.
func (m *Manager) Get(ctx context.Context, name string) (*store.Sandbox, error) {
	return m.store.FindByName(ctx, name)
}

// List returns every record, terminated ones included.
func (m *Manager) List(ctx context.Context) ([]store.Sandbox, error) {
	return m.store.ListAll(ctx)
}

// PendingJobs returns the scheduled expiries ordered by run time.
func (m *Manager) PendingJobs() []scheduler.Job {
	return m.scheduler.ListPending()
}

// Reconcile re-registers expiry jobs for every ACTIVE record. It runs at
// startup since scheduled jobs do not survive a restart. Overdue records
// are scheduled at their stored expiry and fire as soon as the scheduler runs.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle.Reconcile")
	defer span.End()

	active, err := m.store.ListActive(ctx)
	if err != nil {
		return 0, fail(span, fmt.Errorf("failed to list active sandboxes: %w", err))
	}

	scheduled := 0
	for _, sb := range active {
		ok, err := m.reschedule(ctx, sb.Name)
		if err != nil {
			return scheduled, fail(span, err)
		}
		if ok {
			scheduled++
		}
	}
	span.SetAttributes(attribute.Int("sandboxes.active", scheduled))
	m.logger.Info("reconciled expiry jobs", "active", scheduled)
	return scheduled, nil
}

// reschedule re-registers the expiry job for name if its record is still
// ACTIVE once the name lock is held. A Terminate or Expire that finished
// after the listing must not get its job back.
func (m *Manager) reschedule(ctx context.Context, name string) (bool, error) {
	unlock := m.lock(name)
	defer unlock()

	sb, err := m.store.FindByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up sandbox %s: %w", name, err)
	}
	if !sb.IsActive() {
		return false, nil
	}

	m.scheduler.Schedule(JobID(name), sb.ExpiryTime, m.Expire, name)
	return true, nil
}

// Ready reports whether the store is reachable.
func (m *Manager) Ready(ctx context.Context) error {
	return m.store.Ping(ctx)
}
