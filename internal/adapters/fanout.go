package adapters

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FanOutAdapter joins several sub-adapters (e.g. one per court in a
// multi-court jurisdiction) into one candidate batch. Sub-feeds are fetched
// concurrently; network fetches are the only parallel step in an ingestion
// run.
type FanOutAdapter struct {
	name         string
	jurisdiction string
	subs         []Adapter
	concurrency  int
}

// NewFanOutAdapter builds a fan-out over the given sub-adapters.
func NewFanOutAdapter(name, jurisdiction string, subs []Adapter) *FanOutAdapter {
	return &FanOutAdapter{
		name:         name,
		jurisdiction: jurisdiction,
		subs:         subs,
		concurrency:  4,
	}
}

func (a *FanOutAdapter) Name() string         { return a.name }
func (a *FanOutAdapter) Jurisdiction() string { return a.jurisdiction }

// FetchDocuments gathers every sub-feed and dedups the merged batch. A
// failing sub-feed contributes nothing; the rest still land.
func (a *FanOutAdapter) FetchDocuments(ctx context.Context) []NormalizedDocument {
	var mu sync.Mutex
	var merged []NormalizedDocument

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, sub := range a.subs {
		sub := sub
		g.Go(func() error {
			docs := sub.FetchDocuments(gCtx)
			mu.Lock()
			merged = append(merged, docs...)
			mu.Unlock()
			return nil
		})
	}
	// Sub-adapters never return errors, so Wait only propagates ctx
	// cancellation.
	_ = g.Wait()

	return Dedup(merged)
}
