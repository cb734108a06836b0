package projection

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/medchain/registry/internal/registry"
)

// EventSink is where the projector writes events. Satisfied by StorePG;
// tests substitute an in-memory sink.
type EventSink interface {
	InsertEvent(ctx context.Context, ev registry.Event) error
	MaxSeq(ctx context.Context) (uint64, error)
}

// Projector drains the registry event log into a sink. On start it catches
// up from the last archived sequence number, then follows the live
// subscription; if the subscription buffer overflows it re-reads the log,
// so the archive never has gaps.
type Projector struct {
	log    *registry.EventLog
	sink   EventSink
	logger zerolog.Logger
}

func NewProjector(log *registry.EventLog, sink EventSink, logger zerolog.Logger) *Projector {
	return &Projector{log: log, sink: sink, logger: logger}
}

// catchUp archives every event after the sink's high-water mark and
// returns the new mark.
func (p *Projector) catchUp(ctx context.Context, after uint64) uint64 {
	for {
		batch := p.log.Since(after, 256)
		if len(batch) == 0 {
			return after
		}
		for _, ev := range batch {
			if err := p.sink.InsertEvent(ctx, ev); err != nil {
				p.logger.Error().Err(err).Uint64("seq", ev.Seq).Msg("archive event")
				return after
			}
			after = ev.Seq
		}
	}
}

// Run follows the event log until ctx is done.
func (p *Projector) Run(ctx context.Context) {
	mark, err := p.sink.MaxSeq(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("read archive high-water mark")
	}

	events, cancel := p.log.Subscribe(256)
	defer cancel()

	mark = p.catchUp(ctx, mark)
	p.logger.Info().Uint64("seq", mark).Msg("event projection caught up")

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Seq <= mark {
				continue
			}
			// A gap means the subscription buffer overflowed; re-read
			// the log instead of archiving out of order.
			if ev.Seq != mark+1 {
				mark = p.catchUp(ctx, mark)
				continue
			}
			if err := p.sink.InsertEvent(ctx, ev); err != nil {
				p.logger.Error().Err(err).Uint64("seq", ev.Seq).Msg("archive event")
				continue
			}
			mark = ev.Seq
		}
	}
}
