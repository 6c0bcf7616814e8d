// Package aggregator fans out to every configured source adapter, tolerates
// partial failure, and merges the surviving results into one ordered token
// list.
package aggregator

import (
	"context"
	"time"

	"tokenflow/logger"
	"tokenflow/models"
	"tokenflow/source"
)

// LiveSource exposes the socket ingester's live token map as one more input
// set. Implementations must return an independent snapshot slice.
type LiveSource interface {
	Name() string
	Tokens() []models.Token
}

// Result is one aggregation outcome. Unavailable is set when every adapter
// failed; the token list is then empty but the result is still well-formed.
type Result struct {
	Tokens       []models.Token
	SourceCounts map[string]int
	Unavailable  bool
}

// Aggregator runs all source adapters concurrently and merges their output.
type Aggregator struct {
	adapters []source.Adapter
	live     LiveSource
	log      *logger.Log
}

// New creates an Aggregator over the given adapters. Adapter order is the
// merge order: later adapters overwrite non-empty fields of earlier ones.
func New(adapters []source.Adapter) *Aggregator {
	return &Aggregator{
		adapters: adapters,
		log:      logger.GetLogger(),
	}
}

// WithLive attaches a live token source that is folded in after the REST
// adapters when an aggregation asks for realtime data.
func (a *Aggregator) WithLive(live LiveSource) *Aggregator {
	a.live = live
	return a
}

type fetchResult struct {
	index  int
	tokens []models.Token
	err    error
}

// Aggregate invokes every adapter concurrently and waits for all of them,
// substituting an empty list for any that fail. A single provider outage
// never fails the aggregation; only all adapters failing marks the result
// unavailable.
func (a *Aggregator) Aggregate(ctx context.Context, limit int, timeframe string, realtime bool) Result {
	log := a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"limit":     limit,
		"timeframe": timeframe,
	})

	start := time.Now()
	results := make(chan fetchResult, len(a.adapters))
	for i, adapter := range a.adapters {
		go func(i int, adapter source.Adapter) {
			tokens, err := adapter.Fetch(ctx, limit, timeframe)
			results <- fetchResult{index: i, tokens: tokens, err: err}
		}(i, adapter)
	}

	// Settle all: collect every adapter's outcome regardless of failures,
	// then combine in configured adapter order so completion order never
	// affects the output.
	sets := make([][]models.Token, len(a.adapters))
	failed := 0
	for range a.adapters {
		r := <-results
		if r.err != nil {
			failed++
			log.WithError(r.err).WithFields(logger.Fields{
				"source": a.adapters[r.index].Name(),
			}).Warn("source adapter failed; substituting empty result")
			continue
		}
		sets[r.index] = r.tokens
	}

	counts := make(map[string]int, len(a.adapters)+1)
	for i, adapter := range a.adapters {
		counts[adapter.Name()] = len(sets[i])
	}

	if realtime && a.live != nil {
		liveTokens := a.live.Tokens()
		counts[a.live.Name()] = len(liveTokens)
		sets = append(sets, liveTokens)
	}

	merged := Merge(sets...)
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	unavailable := len(a.adapters) > 0 && failed == len(a.adapters) && len(merged) == 0

	logger.SetTokensAggregated(int64(len(merged)))
	logger.LogPerformanceEntry(log, "aggregator", "aggregate", time.Since(start), logger.Fields{
		"tokens": len(merged),
		"failed": failed,
	})
	if unavailable {
		log.Warn("all source adapters failed; returning empty aggregation")
	}

	return Result{
		Tokens:       merged,
		SourceCounts: counts,
		Unavailable:  unavailable,
	}
}
