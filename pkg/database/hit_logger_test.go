package database

import (
	"testing"
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/ir"
	"github.com/dbehnke/lasertag-ir/pkg/logger"
	"github.com/dbehnke/lasertag-ir/pkg/protocol"
)

func testHit(team, weapon uint8, at time.Time) ir.Hit {
	p := protocol.NewPayload(protocol.DefaultSeed, team, weapon)
	value, address := p.Pack()
	return ir.Hit{
		Protocol:   protocol.ProtocolDynasty20LaserTag,
		Bits:       protocol.Dynasty20Bits,
		Address:    address,
		Value:      value,
		Payload:    p,
		Valid:      true,
		ReceivedAt: at,
	}
}

func TestHitLogger_StoresEveryFrameWithoutWindow(t *testing.T) {
	db := openTestDB(t)
	repo := NewHitRepository(db.GetDB())
	hl := NewHitLogger(repo, 0, logger.New(logger.Config{Level: "error"}))

	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if !hl.LogHit(testHit(1, 2, at.Add(time.Duration(i)*time.Millisecond))) {
			t.Fatalf("hit %d not stored", i)
		}
	}

	hits, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("Expected 3 stored hits, got %d", len(hits))
	}
	if hl.TrackedFrames() != 0 {
		t.Errorf("Expected no tracked frames without window, got %d", hl.TrackedFrames())
	}
}

func TestHitLogger_SuppressesRepeatsInsideWindow(t *testing.T) {
	db := openTestDB(t)
	repo := NewHitRepository(db.GetDB())
	hl := NewHitLogger(repo, 200*time.Millisecond, logger.New(logger.Config{Level: "error"}))

	at := time.Now().UTC()
	if !hl.LogHit(testHit(1, 2, at)) {
		t.Fatal("first hit not stored")
	}
	if hl.LogHit(testHit(1, 2, at.Add(50*time.Millisecond))) {
		t.Error("repeat inside window should be suppressed")
	}
	// The window slides with each repeat
	if hl.LogHit(testHit(1, 2, at.Add(220*time.Millisecond))) {
		t.Error("repeat within window of previous repeat should be suppressed")
	}
	if !hl.LogHit(testHit(3, 4, at.Add(60*time.Millisecond))) {
		t.Error("different frame should be stored")
	}
	if !hl.LogHit(testHit(1, 2, at.Add(time.Second))) {
		t.Error("frame after window should be stored")
	}

	hits, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("Expected 3 stored hits, got %d", len(hits))
	}
}

func TestHitLogger_CleanupStale(t *testing.T) {
	db := openTestDB(t)
	repo := NewHitRepository(db.GetDB())
	hl := NewHitLogger(repo, 100*time.Millisecond, logger.New(logger.Config{Level: "error"}))

	at := time.Now().UTC()
	hl.LogHit(testHit(1, 2, at))
	hl.LogHit(testHit(5, 6, at.Add(90*time.Millisecond)))
	if hl.TrackedFrames() != 2 {
		t.Fatalf("Expected 2 tracked frames, got %d", hl.TrackedFrames())
	}

	hl.CleanupStale(at.Add(150 * time.Millisecond))
	if hl.TrackedFrames() != 1 {
		t.Errorf("Expected 1 tracked frame after cleanup, got %d", hl.TrackedFrames())
	}

	hl.CleanupStale(at.Add(time.Second))
	if hl.TrackedFrames() != 0 {
		t.Errorf("Expected 0 tracked frames, got %d", hl.TrackedFrames())
	}
}
