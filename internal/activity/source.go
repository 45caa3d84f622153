// ABOUTME: Source interface for polled activity producers and the poll helper
// ABOUTME: Producers report events; the feed decides what is new

package activity

import (
	"context"
	"log/slog"
)

// Source is a polled producer of activity events.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Poll returns the events currently visible upstream. Events that were
	// already reported must carry the same Key so the feed can drop them.
	Poll(ctx context.Context) ([]Event, error)
}

// PollInto polls every source and appends the results to feed.
// A failing source is logged and skipped; it never stops the others.
// Returns the number of events that were new to the feed.
func PollInto(ctx context.Context, feed *Feed, sources []Source, logger *slog.Logger) int {
	added := 0
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		events, err := src.Poll(ctx)
		if err != nil {
			logger.Warn("activity source poll failed", "source", src.Name(), "error", err)
			continue
		}
		for _, e := range events {
			if feed.Append(e) {
				added++
			}
		}
	}
	return added
}
