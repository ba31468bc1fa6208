package database

import (
	"time"

	"github.com/dbehnke/lasertag-ir/pkg/ir"
	"gorm.io/gorm"
)

// HitRecord is one received shot
type HitRecord struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Protocol   string    `gorm:"size:32;not null" json:"protocol"`
	Seed       uint8     `gorm:"not null" json:"seed"`
	Value      uint32    `gorm:"not null" json:"value"`
	Team       uint8     `gorm:"index;not null" json:"team"`
	Weapon     uint8     `gorm:"index;not null" json:"weapon"`
	Checksum   uint8     `gorm:"not null" json:"checksum"`
	Valid      bool      `gorm:"index;not null" json:"valid"`
	Error      string    `gorm:"size:128" json:"error,omitempty"`
	ReceivedAt time.Time `gorm:"index;not null" json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for HitRecord
func (HitRecord) TableName() string {
	return "hits"
}

// BeforeCreate hook to ensure timestamps are set
func (h *HitRecord) BeforeCreate(tx *gorm.DB) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	if h.ReceivedAt.IsZero() {
		h.ReceivedAt = h.CreatedAt
	}
	return nil
}

// NewHitRecord converts a delivered hit for storage
func NewHitRecord(h ir.Hit) *HitRecord {
	rec := &HitRecord{
		Protocol:   h.Protocol.String(),
		Seed:       h.Address,
		Value:      h.Value,
		Team:       h.Payload.Team,
		Weapon:     h.Payload.Weapon,
		Checksum:   h.Payload.Checksum,
		Valid:      h.Valid,
		ReceivedAt: h.ReceivedAt,
	}
	if h.VerifyErr != nil {
		rec.Error = h.VerifyErr.Error()
	}
	return rec
}

// TeamScore aggregates hits by team code
type TeamScore struct {
	Team    uint8     `json:"team"`
	Hits    int64     `json:"hits"`
	Invalid int64     `json:"invalid"`
	LastHit time.Time `json:"last_hit"`
}
