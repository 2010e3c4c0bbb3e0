package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sirpyerre/tenant-portal/internal/api/metrics"
	"github.com/sirpyerre/tenant-portal/internal/core/domain"
	"github.com/sirpyerre/tenant-portal/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	writeTimeout   = 5 * time.Second
)

// ErrStopTimeout is returned by Stop when the queues did not drain in time.
var ErrStopTimeout = errors.New("audit dispatcher: drain timed out")

// AuditDispatcher persists audit events off the request path. Events are
// sharded by user so one user's events are written in the order they occurred.
// Record never blocks: when a worker queue is full the event is dropped and counted.
type AuditDispatcher struct {
	workers []chan domain.AuditEvent
	repo    ports.AuditRepository
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ ports.AuditSink = (*AuditDispatcher)(nil)

// NewAuditDispatcher creates a dispatcher with numWorkers sharded workers, each
// with a queue of buffer events. Non-positive values select the defaults.
func NewAuditDispatcher(numWorkers, buffer int, repo ports.AuditRepository, log zerolog.Logger) *AuditDispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = channelBuffer
	}
	d := &AuditDispatcher{
		workers: make([]chan domain.AuditEvent, numWorkers),
		repo:    repo,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.AuditEvent, buffer)
	}
	return d
}

// Start launches all worker goroutines. ctx scopes the writes; its
// cancellation does not stop the workers, Stop does.
func (d *AuditDispatcher) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(base, i, ch)
	}
}

// Record enqueues ev for the worker responsible for its user.
func (d *AuditDispatcher) Record(_ context.Context, ev domain.AuditEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.AuditEventsDroppedTotal.Inc()
		return
	}

	idx := d.shardIndex(shardKey(ev))
	select {
	case d.workers[idx] <- ev:
		metrics.AuditEventsTotal.WithLabelValues(string(ev.Type)).Inc()
		if ev.Type == domain.AuditRefreshReplayed {
			metrics.AuthRefreshReplaysTotal.Inc()
		}
		metrics.AuditQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.AuditEventsDroppedTotal.Inc()
		d.log.Warn().Str("type", string(ev.Type)).Int("worker_id", idx).Msg("audit queue full, event dropped")
	}
}

// Stop closes the queues and waits until every queued event is written or ctx ends.
func (d *AuditDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrStopTimeout
	}
}

func shardKey(ev domain.AuditEvent) string {
	if ev.UserID != "" {
		return ev.UserID
	}
	return ev.Email
}

// shardIndex maps a key deterministically to a worker index.
func (d *AuditDispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers))) // #nosec G115 -- worker count is small
}

func (d *AuditDispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.AuditEvent) {
	defer d.wg.Done()
	label := strconv.Itoa(id)

	for ev := range ch {
		metrics.AuditQueueDepth.WithLabelValues(label).Set(float64(len(ch)))

		start := time.Now()
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := d.repo.Insert(writeCtx, &ev)
		cancel()

		result := "ok"
		if err != nil {
			result = "error"
			d.log.Error().Err(err).
				Str("type", string(ev.Type)).
				Str("user_id", ev.UserID).
				Int("worker_id", id).
				Msg("audit event write failed")
		}
		metrics.AuditWriteDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}
