package database

import (
	"sync"
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/ir"
	"github.com/dbehnke/lasertag-ir/pkg/logger"
)

// HitLogger stores hits delivered by the receiver. Identical frames seen
// again within the dedupe window are counted as reflections, not new hits.
type HitLogger struct {
	repo   *HitRepository
	logger *logger.Logger
	window time.Duration
	recent map[frameKey]*recentFrame
	mu     sync.Mutex
}

type frameKey struct {
	address uint8
	value   uint32
}

type recentFrame struct {
	id       uint
	lastSeen time.Time
	repeats  int
}

// NewHitLogger creates a hit logger. A zero window stores every frame.
func NewHitLogger(repo *HitRepository, window time.Duration, log *logger.Logger) *HitLogger {
	return &HitLogger{
		repo:   repo,
		logger: log,
		window: window,
		recent: make(map[frameKey]*recentFrame),
	}
}

// LogHit saves a hit unless it repeats a frame stored within the window.
// It reports whether a new record was written.
func (hl *HitLogger) LogHit(hit ir.Hit) bool {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	key := frameKey{address: hit.Address, value: hit.Value}
	if hl.window > 0 {
		if f, ok := hl.recent[key]; ok && hit.ReceivedAt.Sub(f.lastSeen) <= hl.window {
			f.lastSeen = hit.ReceivedAt
			f.repeats++
			hl.logger.Debug("Suppressed repeated frame",
				logger.Hex("value", uint64(hit.Value), 8),
				logger.Int("repeats", f.repeats))
			return false
		}
	}

	rec := NewHitRecord(hit)
	if err := hl.repo.Create(rec); err != nil {
		hl.logger.Error("Failed to save hit",
			logger.Error(err),
			logger.Hex("value", uint64(hit.Value), 8))
		return false
	}

	if hl.window > 0 {
		hl.recent[key] = &recentFrame{id: rec.ID, lastSeen: rec.ReceivedAt}
	}
	hl.logger.Debug("Saved hit",
		logger.Any("id", rec.ID),
		logger.Hex("team", uint64(rec.Team), 2),
		logger.Hex("weapon", uint64(rec.Weapon), 2))
	return true
}

// CleanupStale forgets frames not seen for longer than the window.
// Should be called periodically.
func (hl *HitLogger) CleanupStale(now time.Time) {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	for key, f := range hl.recent {
		if now.Sub(f.lastSeen) > hl.window {
			if f.repeats > 0 {
				hl.logger.Debug("Frame repeats settled",
					logger.Any("id", f.id),
					logger.Int("repeats", f.repeats))
			}
			delete(hl.recent, key)
		}
	}
}

// TrackedFrames returns the number of frames inside the dedupe window
func (hl *HitLogger) TrackedFrames() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.recent)
}
