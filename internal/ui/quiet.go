package ui

import "github.com/VincentDu2021/uring-sync/internal/stats"

// quietPresenter consumes events but produces no output.
type quietPresenter struct {
	stats *stats.Collector
}

func (p *quietPresenter) Run(events <-chan Event) error {
	for ev := range events {
		p.handleEvent(ev)
	}
	return nil
}

func (p *quietPresenter) handleEvent(_ Event) {
	// Totals are set on the collector directly by the engine;
	// the quiet presenter ignores every event.
}

func (p *quietPresenter) Summary() string {
	return ""
}
