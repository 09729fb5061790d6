package internal

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultDiskCap       int64 = 10 * 1024 * 1024 * 1024
	DefaultEvictInterval       = 30 * time.Second
)

// EvictionReport summarizes one evictor tick.
type EvictionReport struct {
	Before     int64
	After      int64
	Evicted    int
	Failed     int
	FreedBytes int64
}

// Evictor keeps the tracked media size under a cap by deleting the oldest
// uploads first.
type Evictor struct {
	log      *MediaLog
	capBytes int64
	interval time.Duration
	remove   func(path string) error
	logger   zerolog.Logger
	metrics  *Metrics
}

func NewEvictor(log *MediaLog, capBytes int64, interval time.Duration, logger zerolog.Logger) *Evictor {
	if capBytes <= 0 {
		capBytes = DefaultDiskCap
	}
	if interval <= 0 {
		interval = DefaultEvictInterval
	}
	return &Evictor{
		log:      log,
		capBytes: capBytes,
		interval: interval,
		remove:   os.Remove,
		logger:   logger.With().Str("component", "evictor").Logger(),
	}
}

// WithMetrics makes the evictor count what it frees.
func (evictor *Evictor) WithMetrics(metrics *Metrics) *Evictor {
	evictor.metrics = metrics
	return evictor
}

// Run ticks until ctx is done.
func (evictor *Evictor) Run(ctx context.Context) error {
	ticker := time.NewTicker(evictor.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			evictor.Tick()
		}
	}
}

// Tick evicts oldest entries until the running total fits the cap or the log
// is empty. A file that cannot be deleted is still dropped from the log and
// its size is not subtracted from the running total.
func (evictor *Evictor) Tick() EvictionReport {
	total := evictor.log.TotalSize()
	report := EvictionReport{Before: total, After: total}
	if total <= evictor.capBytes {
		return report
	}
	for total > evictor.capBytes {
		entry, ok := evictor.log.PopOldest()
		if !ok {
			break
		}
		if err := evictor.remove(entry.Path); err != nil {
			report.Failed++
			evictor.logger.Warn().Err(err).Str("path", entry.Path).Str("room", entry.Room).Msg("delete media")
			continue
		}
		total -= entry.Size
		report.Evicted++
		report.FreedBytes += entry.Size
	}
	report.After = total
	if evictor.metrics != nil {
		evictor.metrics.AddEvicted(report.Evicted, report.FreedBytes)
	}
	evictor.logger.Info().
		Int64("before", report.Before).
		Int64("after", report.After).
		Int("evicted", report.Evicted).
		Int("failed", report.Failed).
		Msg("media eviction")
	return report
}
