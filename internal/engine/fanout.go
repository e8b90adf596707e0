package engine

import (
	"log/slog"

	"github.com/Priya8975/quakewatch/internal/domain"
)

// Publisher pushes poll results to subscribers. Implementations must not
// block the caller for long and must swallow their own delivery errors.
type Publisher interface {
	PublishSnapshot(events []domain.Earthquake)
	PublishNewEvent(event domain.Earthquake)
}

// Fanout forwards every publish to a fixed set of publishers. A publisher
// that panics is logged and skipped so the others still get the message.
type Fanout struct {
	publishers []Publisher
	logger     *slog.Logger
}

func NewFanout(logger *slog.Logger, publishers ...Publisher) *Fanout {
	f := &Fanout{logger: logger}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

func (f *Fanout) PublishSnapshot(events []domain.Earthquake) {
	for _, p := range f.publishers {
		f.safely(domain.MessageSnapshot, func() { p.PublishSnapshot(events) })
	}
}

func (f *Fanout) PublishNewEvent(event domain.Earthquake) {
	for _, p := range f.publishers {
		f.safely(domain.MessageNewEvent, func() { p.PublishNewEvent(event) })
	}
}

// Len returns the number of publishers.
func (f *Fanout) Len() int {
	return len(f.publishers)
}

func (f *Fanout) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("publisher panicked", "message_type", kind, "panic", r)
		}
	}()
	fn()
}
