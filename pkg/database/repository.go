package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// HitRepository handles hit log database operations
type HitRepository struct {
	db *gorm.DB
}

// NewHitRepository creates a new hit repository
func NewHitRepository(db *gorm.DB) *HitRepository {
	return &HitRepository{db: db}
}

// Create adds a new hit record
func (r *HitRepository) Create(hit *HitRecord) error {
	return r.db.Create(hit).Error
}

// GetRecent retrieves the most recent N hits
func (r *HitRepository) GetRecent(limit int) ([]HitRecord, error) {
	var hits []HitRecord
	err := r.db.Order("received_at DESC").Limit(limit).Find(&hits).Error
	return hits, err
}

// GetRecentPaginated retrieves hits with pagination
func (r *HitRepository) GetRecentPaginated(page, perPage int) ([]HitRecord, int64, error) {
	var hits []HitRecord
	var total int64

	if err := r.db.Model(&HitRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	err := r.db.Order("received_at DESC").
		Offset(offset).
		Limit(perPage).
		Find(&hits).Error

	return hits, total, err
}

// GetByTeam retrieves hits carrying a team code
func (r *HitRepository) GetByTeam(team uint8, limit int) ([]HitRecord, error) {
	var hits []HitRecord
	err := r.db.Where("team = ?", team).
		Order("received_at DESC").
		Limit(limit).
		Find(&hits).Error
	return hits, err
}

// GetByTimeRange retrieves hits within a time range
func (r *HitRepository) GetByTimeRange(start, end time.Time, limit int) ([]HitRecord, error) {
	var hits []HitRecord
	err := r.db.Where("received_at BETWEEN ? AND ?", start, end).
		Order("received_at DESC").
		Limit(limit).
		Find(&hits).Error
	return hits, err
}

// Scoreboard returns hit totals per team, most hits first
func (r *HitRepository) Scoreboard() ([]TeamScore, error) {
	var rows []struct {
		Team    uint8
		Hits    int64
		Invalid int64
		LastHit string
	}
	err := r.db.Model(&HitRecord{}).
		Select("team, COUNT(*) AS hits, SUM(CASE WHEN valid THEN 0 ELSE 1 END) AS invalid, MAX(received_at) AS last_hit").
		Group("team").
		Order("hits DESC, team ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	scores := make([]TeamScore, 0, len(rows))
	for _, row := range rows {
		last, err := parseSQLiteTime(row.LastHit)
		if err != nil {
			return nil, fmt.Errorf("team %d: %w", row.Team, err)
		}
		scores = append(scores, TeamScore{
			Team:    row.Team,
			Hits:    row.Hits,
			Invalid: row.Invalid,
			LastHit: last,
		})
	}
	return scores, nil
}

// DeleteOlderThan deletes hits received before the specified time
func (r *HitRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("received_at < ?", before).Delete(&HitRecord{})
	return result.RowsAffected, result.Error
}

// MAX() over a datetime column comes back as text in the DSN's time format
func parseSQLiteTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
