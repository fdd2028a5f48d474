// Package retention sweeps stale transcript snapshots out of the local
// cache on a cron schedule. The remote store is the source of truth, so a
// dropped snapshot only costs an extra fetch on the next offline load.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"

	"cadence/pkg/cache"
	"cadence/pkg/config"
	"cadence/pkg/logger"
)

// snapshotHeader is the minimal shape needed to age a cached transcript.
type snapshotHeader struct {
	SavedTS int64 `json:"saved_ts"`
}

// Start launches the sweep scheduler if retention is enabled. maxSize is
// the cache size budget in bytes (0 disables size trimming). Returns a
// cancel func stopping it.
func Start(ctx context.Context, cfg config.RetentionConfig, maxSize uint64, store *cache.Store) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if !gronx.IsValid(cfg.Cron) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Info("retention_enabled", "cron", cfg.Cron, "max_age", cfg.MaxAge.Std().String(), "max_size", humanize.Bytes(maxSize))
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, maxSize, store)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until it.
func runScheduler(ctx context.Context, cfg config.RetentionConfig, maxSize uint64, store *cache.Store) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cfg.Cron, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if n, err := RunOnce(store, cfg.MaxAge.Std(), maxSize); err != nil {
				logger.Error("retention_run_error", "error", err)
			} else {
				logger.Info("retention_run_done", "removed", n)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce removes cached transcripts whose snapshot is older than maxAge,
// then trims the oldest surviving snapshots until the total size fits
// maxSize bytes (0 means no size budget). Returns the number of removed
// entries.
func RunOnce(store *cache.Store, maxAge time.Duration, maxSize uint64) (int, error) {
	keys, err := store.Keys(cache.TranscriptPrefix())
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()

	type survivor struct {
		key     string
		savedTS int64
		size    uint64
	}
	var kept []survivor
	var total uint64
	removed := 0
	for _, key := range keys {
		raw, ok, err := store.Get(key)
		if err != nil || !ok {
			continue
		}
		var hdr snapshotHeader
		if err := json.Unmarshal([]byte(raw), &hdr); err != nil {
			// unreadable snapshot, drop it
			if store.Remove(key) == nil {
				removed++
			}
			continue
		}
		if hdr.SavedTS < cutoff {
			if err := store.Remove(key); err != nil {
				logger.Warn("retention_remove_failed", "key", key, "error", err)
				continue
			}
			removed++
			continue
		}
		kept = append(kept, survivor{key: key, savedTS: hdr.SavedTS, size: uint64(len(raw))})
		total += uint64(len(raw))
	}

	if maxSize == 0 || total <= maxSize {
		return removed, nil
	}
	// over budget: oldest snapshots go first until the cache fits
	sort.Slice(kept, func(i, j int) bool { return kept[i].savedTS < kept[j].savedTS })
	for _, s := range kept {
		if total <= maxSize {
			break
		}
		if err := store.Remove(s.key); err != nil {
			logger.Warn("retention_remove_failed", "key", s.key, "error", err)
			continue
		}
		total -= s.size
		removed++
	}
	return removed, nil
}
