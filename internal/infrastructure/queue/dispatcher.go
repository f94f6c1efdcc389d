package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/milsabores/identity-service/internal/core/domain"
	"github.com/milsabores/identity-service/internal/core/ports"
	"github.com/milsabores/identity-service/internal/pkg/metrics"
)

const (
	defaultWorkers = 4
	channelBuffer  = 128
)

// Deduper claims the right to notify an email once per window.
type Deduper interface {
	Claim(ctx context.Context, email string) (bool, error)
}

// Dispatcher routes recovery requests to a fixed set of workers using
// hashing on the email, so requests for one address are handled in order.
type Dispatcher struct {
	workers  []chan domain.RecoveryRequest
	notifier ports.RecoveryNotifier
	dedup    Deduper
	log      zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used. dedup may be nil.
func NewDispatcher(numWorkers int, notifier ports.RecoveryNotifier, dedup Deduper, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers:  make([]chan domain.RecoveryRequest, numWorkers),
		notifier: notifier,
		dedup:    dedup,
		log:      log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.RecoveryRequest, channelBuffer)
	}
	return d
}

// Run starts all workers and blocks until ctx is cancelled and every worker
// has returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i, ch := range d.workers {
		wg.Add(1)
		go func(id int, ch <-chan domain.RecoveryRequest) {
			defer wg.Done()
			d.runWorker(ctx, id, ch)
		}(i, ch)
	}
	wg.Wait()
	return nil
}

// Enqueue hands req to the worker responsible for its email. It never
// blocks: when that worker's buffer is full the request is dropped.
func (d *Dispatcher) Enqueue(req domain.RecoveryRequest) {
	idx := d.shardIndex(req.Email)
	select {
	case d.workers[idx] <- req:
		metrics.RecoveryRequestsTotal.WithLabelValues("queued").Inc()
		metrics.RecoveryQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.RecoveryRequestsTotal.WithLabelValues("dropped").Inc()
		d.log.Warn().Str("user_id", req.UserID).Int("worker_id", idx).Msg("recovery queue full, request dropped")
	}
}

// shardIndex maps an email deterministically to a worker index.
func (d *Dispatcher) shardIndex(email string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(email)))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.RecoveryRequest) {
	depth := metrics.RecoveryQueueDepth.WithLabelValues(strconv.Itoa(id))
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-ch:
			depth.Set(float64(len(ch)))
			d.handle(ctx, id, req)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, id int, req domain.RecoveryRequest) {
	if d.dedup != nil {
		first, err := d.dedup.Claim(ctx, req.Email)
		if err != nil {
			d.log.Warn().Err(err).Str("user_id", req.UserID).Msg("recovery dedup failed, notifying anyway")
		} else if !first {
			metrics.RecoveryRequestsTotal.WithLabelValues("duplicate").Inc()
			d.log.Debug().Str("user_id", req.UserID).Msg("duplicate recovery request skipped")
			return
		}
	}

	if err := d.notifier.Notify(ctx, req); err != nil {
		metrics.RecoveryRequestsTotal.WithLabelValues("failed").Inc()
		d.log.Error().Err(err).
			Str("user_id", req.UserID).
			Int("worker_id", id).
			Msg("recovery notification failed")
		return
	}

	metrics.RecoveryRequestsTotal.WithLabelValues("notified").Inc()
	d.log.Info().Str("user_id", req.UserID).Int("worker_id", id).Msg("recovery notification queued for delivery")
}
