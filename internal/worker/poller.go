package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Priya8975/quakewatch/internal/domain"
	"github.com/Priya8975/quakewatch/internal/engine"
	"github.com/Priya8975/quakewatch/internal/feed"
	"github.com/Priya8975/quakewatch/internal/metrics"
	"github.com/Priya8975/quakewatch/internal/store"
	"golang.org/x/sync/singleflight"
)

// DefaultInterval is how often the feed is polled.
const DefaultInterval = 10 * time.Second

// Fetcher is the upstream feed.
type Fetcher interface {
	FetchLatest(ctx context.Context) ([]feed.RawRecord, error)
}

// PollStatus describes the poll loop for operators.
type PollStatus struct {
	LastAttemptAt time.Time `json:"last_attempt_at"`
	LastSuccessAt time.Time `json:"last_success_at"`
	LastError     string    `json:"last_error,omitempty"`
	Polls         int64     `json:"polls"`
	Failures      int64     `json:"failures"`
	Skipped       int64     `json:"skipped"`
}

// Poller drives the feed on a fixed interval, independent of how many
// subscribers are connected, and publishes each successful result.
type Poller struct {
	fetcher   Fetcher
	cache     *store.SnapshotCache
	publisher engine.Publisher
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	inFlight atomic.Bool
	group    singleflight.Group
	wg       sync.WaitGroup

	mu     sync.Mutex
	status PollStatus
}

// NewPoller creates a poller. A non-positive interval falls back to
// DefaultInterval.
func NewPoller(fetcher Fetcher, cache *store.SnapshotCache, publisher engine.Publisher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:   fetcher,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// Start polls once immediately and then on every tick until ctx is
// cancelled. It returns after the last in-flight poll has finished.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("poller started", "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			p.wg.Wait()
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick starts a poll in the background unless one is already running.
func (p *Poller) tick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		metrics.PollsSkipped.Inc()
		p.mu.Lock()
		p.status.Skipped++
		p.mu.Unlock()
		p.logger.Debug("previous poll still running, skipping tick")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)
		_ = p.PollOnce(ctx)
	}()
}

// PollOnce runs one fetch-normalize-detect-publish cycle. Concurrent callers
// share a single in-flight cycle and receive its error. On error the cached
// snapshot and last seen id are left untouched and nothing is published.
func (p *Poller) PollOnce(ctx context.Context) error {
	_, err, _ := p.group.Do("poll", func() (any, error) {
		return nil, p.poll(ctx)
	})
	return err
}

// Status returns counters and timestamps of the poll loop.
func (p *Poller) Status() PollStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) poll(ctx context.Context) (err error) {
	start := p.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panicked: %v", r)
			metrics.PollsTotal.WithLabelValues("error").Inc()
			p.logger.Error("poll panicked", "panic", r)
		}
		metrics.PollDuration.Observe(time.Since(start).Seconds())
		p.record(start, err)
	}()

	records, err := p.fetcher.FetchLatest(ctx)
	if err != nil {
		metrics.PollsTotal.WithLabelValues(resultLabel(err)).Inc()
		p.logger.Warn("feed poll failed", "error", err)
		return err
	}

	events := p.collect(records)
	detection := engine.Detect(events, p.cache.LastSeenID())

	p.cache.Replace(domain.Snapshot{
		Events:     events,
		LastSeenID: detection.LastSeenID,
		FetchedAt:  start,
	})
	snapshot := p.cache.Current()

	metrics.PollsTotal.WithLabelValues("success").Inc()
	metrics.SnapshotSize.Set(float64(len(snapshot)))
	metrics.LastSuccess.Set(float64(start.Unix()))

	p.publisher.PublishSnapshot(snapshot)

	if detection.IsNew {
		newest := detection.Newest
		p.logger.Info("new earthquake",
			"event_id", newest.ID,
			"magnitude", newest.Magnitude,
			"location", newest.Location,
		)
		metrics.NewEvents.Inc()
		p.publisher.PublishNewEvent(newest)
	}

	p.logger.Debug("poll complete",
		"events", len(snapshot),
		"last_seen_id", detection.LastSeenID,
		"new_event", detection.IsNew,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// collect normalizes records in feed order, dropping any without an id or
// repeating an id already taken, so ids stay unique within a snapshot.
func (p *Poller) collect(records []feed.RawRecord) []domain.Earthquake {
	events := make([]domain.Earthquake, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for i, rec := range records {
		eq := feed.Normalize(rec)
		if eq.ID == "" {
			metrics.RecordsDropped.Inc()
			p.logger.Warn("dropping feed record without id", "position", i)
			continue
		}
		if _, dup := seen[eq.ID]; dup {
			metrics.RecordsDropped.Inc()
			p.logger.Warn("dropping duplicate feed record", "event_id", eq.ID, "position", i)
			continue
		}
		seen[eq.ID] = struct{}{}
		events = append(events, eq)
	}

	return events
}

func (p *Poller) record(at time.Time, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Polls++
	p.status.LastAttemptAt = at
	if err != nil {
		p.status.Failures++
		p.status.LastError = err.Error()
		return
	}
	p.status.LastSuccessAt = at
	p.status.LastError = ""
}

func resultLabel(err error) string {
	var fe *feed.FetchError
	if errors.As(err, &fe) {
		return fe.Kind.String()
	}
	return "error"
}
