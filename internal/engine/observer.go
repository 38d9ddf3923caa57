package engine

import (
	"context"
	"log/slog"
	"time"
)

// DispatchInfo describes one completed (or failed) dispatch.
type DispatchInfo struct {
	Tick      int64
	EventType string
	Events    int
	Changed   bool
	Duration  time.Duration
	Err       error
}

// Observer is notified after every dispatch. Observers run synchronously on
// the dispatching goroutine and must not call back into the store.
type Observer interface {
	OnDispatch(ctx context.Context, info DispatchInfo)
}

// SlogObserver logs dispatches: Debug on success, Error on failure.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver that emits to logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

// OnDispatch implements Observer.
func (o *SlogObserver) OnDispatch(ctx context.Context, info DispatchInfo) {
	attrs := []slog.Attr{
		slog.Int64("tick", info.Tick),
		slog.String("event_type", info.EventType),
		slog.Int("events", info.Events),
		slog.Bool("changed", info.Changed),
		slog.Duration("duration", info.Duration),
	}
	if info.Err != nil {
		attrs = append(attrs, slog.String("error", info.Err.Error()))
		o.logger.LogAttrs(ctx, slog.LevelError, "dispatch failed", attrs...)
		return
	}
	o.logger.LogAttrs(ctx, slog.LevelDebug, "dispatch", attrs...)
}

// MultiObserver fans out to several observers.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver forwards to every non-nil observer.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return &MultiObserver{observers: filtered}
}

// OnDispatch implements Observer.
func (m *MultiObserver) OnDispatch(ctx context.Context, info DispatchInfo) {
	for _, obs := range m.observers {
		obs.OnDispatch(ctx, info)
	}
}
