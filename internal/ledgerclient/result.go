package ledgerclient

import "time"

// Source tells live data from a stand-in served while the service is down.
type Source string

const (
	SourceLive     Source = "live"
	SourceDegraded Source = "degraded"
)

// Result wraps a read with its provenance. A degraded result carries the
// last live value seen, or the zero value when there was none, together with
// the failure that forced it.
type Result[T any] struct {
	Value     T
	Source    Source
	FetchedAt time.Time
	Err       error
}

// Live reports whether the value came from the service just now.
func (r Result[T]) Live() bool {
	return r.Source == SourceLive
}

// lastGood remembers the most recent live value of one read.
type lastGood[T any] struct {
	value T
	at    time.Time
	ok    bool
}

func (g *lastGood[T]) wrap(value T, err error, now time.Time) Result[T] {
	if err == nil {
		g.value, g.at, g.ok = value, now, true
		return Result[T]{Value: value, Source: SourceLive, FetchedAt: now}
	}
	if g.ok {
		return Result[T]{Value: g.value, Source: SourceDegraded, FetchedAt: g.at, Err: err}
	}
	var zero T
	return Result[T]{Value: zero, Source: SourceDegraded, Err: err}
}
