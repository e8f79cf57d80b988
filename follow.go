package orthrus

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/gehhilfe/orthrus/core"
)

// FollowPace is how long Follow sleeps between polls when nothing wakes it.
var FollowPace = 5 * time.Second

// Follow yields every event from position fromPos on and then keeps waiting
// for new ones, until ctx is cancelled or the consumer stops. Commits of this
// store, and commit notifications for the same stream on the message bus,
// wake it early. A read error is yielded once and ends the sequence.
func (s *Store) Follow(ctx context.Context, fromPos int64, pageSize int) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		logger := s.loggerFrom(ctx).With(slog.String("component", "follow"))

		if err := core.ValidateRange(fromPos, core.Unbounded()); err != nil {
			yield(Event{}, err)
			return
		}
		if err := core.ValidatePageSize(pageSize); err != nil {
			yield(Event{}, err)
			return
		}

		notifier := newCommitNotifier(s.stream)
		defer notifier.Close()
		notifier.listen(s.OnCommit(func(string, []core.EventToSave) {
			notifier.notify()
		}))
		if s.bus != nil {
			sub, err := s.bus.Subscribe(typedMessageHandler{Committed: notifier.Committed})
			if err != nil {
				logger.Warn("failed to subscribe to commits, falling back to polling", slog.Any("error", err))
			} else {
				notifier.listen(sub)
			}
		}

		pacer := time.NewTicker(FollowPace)
		defer pacer.Stop()

		next := fromPos
		for {
			if ctx.Err() != nil {
				return
			}

			// drain wake-ups that arrived while reading
		drain:
			for {
				select {
				case <-notifier.C():
				case <-pacer.C:
				default:
					break drain
				}
			}

			cursor, err := s.GetAllEvents(next, core.Unbounded(), pageSize)
			if err != nil {
				yield(Event{}, err)
				return
			}

			var foundAny bool
			for page, err := range core.Pages(ctx, core.Pager[Event](cursor)) {
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Error("failed to read events", slog.Any("error", err))
					yield(Event{}, err)
					return
				}
				for _, e := range page.Items {
					if !yield(e, nil) {
						return
					}
					next = e.Position + 1
					foundAny = true
				}
			}

			if foundAny {
				logger.Debug("found events, will not sleep", slog.Int64("next", next))
				continue
			}

			// a window that falls into a gap of burned positions reads empty
			ahead, found, err := s.nextPosition(ctx, next, pageSize)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("failed to look past position gap", slog.Any("error", err))
				yield(Event{}, err)
				return
			}
			if found {
				logger.Warn("skipping position gap", slog.Int64("from", next), slog.Int64("to", ahead))
				next = ahead
				continue
			}

			logger.Debug("sleeping for new events", slog.Int64("next", next))
			select {
			case <-ctx.Done():
				return
			case <-pacer.C:
			case <-notifier.C():
			}
		}
	}
}

// gapLookahead is how many pages past an empty window nextPosition searches
// before it falls back to an unbounded read.
const gapLookahead = 64

// nextPosition returns the first position at or after from.
func (s *Store) nextPosition(ctx context.Context, from int64, pageSize int) (int64, bool, error) {
	to := from + int64(pageSize)*gapLookahead
	bounds := []core.Bound{core.Unbounded()}
	if to > from {
		bounds = []core.Bound{core.UpTo(to), core.Unbounded()}
	}
	for _, bound := range bounds {
		events, err := s.adapter.GetAllEvents(ctx, from, bound)
		if err != nil {
			return 0, false, err
		}
		if len(events) > 0 {
			return events[0].Position, true, nil
		}
	}
	return 0, false, nil
}
