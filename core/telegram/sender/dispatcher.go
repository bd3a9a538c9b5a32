// Package sender runs outbound Bot API calls on background workers with
// retries, keeping per-chat ordering.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/metrics"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the chat's shard has no room left.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options tunes a Dispatcher. Zero values pick the defaults noted per field.
type Options struct {
	QueueSize    int           // per worker, default 256
	Workers      int           // default 4
	MaxRetries   int           // extra attempts after the first, default 0
	RetryBackoff time.Duration // grows linearly per attempt, default 2s
	MaxDuration  time.Duration // budget for one job including retries, default 12s

	Metrics *metrics.Registry
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes Bot API calls asynchronously. Jobs are sharded by chat
// id, so calls for one chat run in the order they were enqueued.
type Dispatcher struct {
	opts   Options
	queues []chan job
	wg     sync.WaitGroup
	failed atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts opts.Workers workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, queues: make([]chan job, opts.Workers)}
	for i := range d.queues {
		q := make(chan job, opts.QueueSize)
		d.queues[i] = q
		d.wg.Go(func() {
			for j := range q {
				d.execute(j)
			}
		})
	}
	return d
}

// Enqueue schedules run on the worker owning the chat in ctx. run may be
// called more than once, so it must be safe to repeat.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queues[d.shard(ctx)] <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) shard(ctx context.Context) int {
	key := logger.ChatIDFrom(ctx)
	if key == 0 {
		key = logger.UserIDFrom(ctx)
	}
	n := int64(len(d.queues))
	return int(((key % n) + n) % n)
}

// ErrorCount returns how many jobs failed for good.
func (d *Dispatcher) ErrorCount() uint64 { return d.failed.Load() }

// Retries returns the number of extra attempts per job.
func (d *Dispatcher) Retries() int { return d.opts.MaxRetries }

// Close rejects new jobs, drains the queues and waits for the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) execute(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attrs := []slog.Attr{
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
	}
	limit := d.opts.MaxRetries + 1

	var err error
	attempt := 0
	for attempt < limit {
		attempt++
		if err = j.run(); err == nil {
			break
		}
		wait, retry := d.retryDelay(err, attempt)
		if !retry || attempt == limit {
			break
		}
		logger.Debug(j.ctx, "tg.sender", "send.retry",
			append(attrs, slog.Int("attempt", attempt), slog.Duration("backoff", wait))...)
		if err = sleep(ctx, wait); err != nil {
			break
		}
	}

	attrs = append(attrs, slog.Int("attempts", attempt), slog.Duration("duration", time.Since(start)))
	if err == nil {
		logger.Debug(j.ctx, "tg.sender", "send.ok", attrs...)
		return
	}
	d.failed.Add(1)
	d.opts.Metrics.SendError()
	logger.Error(j.ctx, "tg.sender", "send.fail", append(attrs,
		slog.String("status", "fail"),
		slog.String("err", redact(err)),
		slog.String("err_kind", errorKind(err)),
	)...)
}

// retryDelay reports whether err deserves another attempt and how long to
// wait first. Flood control uses the delay Telegram asked for.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	backoff := d.opts.RetryBackoff * time.Duration(attempt)
	if after, ok := floodWait(err); ok {
		return max(after, backoff), true
	}
	return backoff, transient(err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
