package authcore

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const defaultSinkTimeout = 5 * time.Second

// auditDispatcher decouples audit delivery from the calling operation. Events
// that cannot be enqueued in time or that exhaust their retries are counted
// and logged at ERROR; none disappear silently.
type auditDispatcher struct {
	cfg    AuditConfig
	sink   AuditSink
	logger *log.Logger
	onLoss func()

	ch        chan AuditEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger *log.Logger, onLoss func()) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if onLoss == nil {
		onLoss = func() {}
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}

	d := &auditDispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		onLoss: onLoss,
		ch:     make(chan AuditEvent, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) deliver(event AuditEvent) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.RetryInitialInterval
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 10 * time.Millisecond
	}

	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SinkTimeout)
		defer cancel()
		return struct{}{}, d.sink.Emit(ctx, event)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(d.cfg.MaxRetries+1))
	if err != nil {
		d.lose(event, "sink failed after retries: "+err.Error())
	}
}

func (d *auditDispatcher) lose(event AuditEvent, why string) {
	d.dropped.Add(1)
	d.onLoss()
	d.logger.Printf("authcore: ERROR audit event lost kind=%s account=%s: %s", event.EventType, event.AccountID, why)
}

// Emit enqueues event, waiting at most EnqueueTimeout for buffer space.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if d.closed.Load() {
		d.lose(event, "dispatcher closed")
		return
	}

	select {
	case d.ch <- event:
		return
	default:
	}

	if d.cfg.EnqueueTimeout <= 0 {
		d.lose(event, "buffer full")
		return
	}

	timer := time.NewTimer(d.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case d.ch <- event:
	case <-timer.C:
		d.lose(event, "buffer full")
	case <-ctx.Done():
		d.lose(event, "caller context done while buffer full")
	case <-d.done:
		d.lose(event, "dispatcher closed")
	}
}

// Close stops accepting events and waits until the buffer is drained.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of events lost to overflow or sink failure.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
