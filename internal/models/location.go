package models

import (
	"fmt"
	"time"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is a fixed camera-trap site and the storage folder its camera
// uploads into.
type Location struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
	StoragePath string      `json:"storagePath"`
	Description string      `json:"description"`
}

// LocationSummary is the recent activity of one location. RecentImageCount
// is bounded by the summary query's window and cap, not the folder total.
type LocationSummary struct {
	RecentImageCount int        `json:"recentImages"`
	LastActivity     *time.Time `json:"lastActivity"`
}

// Label renders the count for display, singular for exactly one.
func (s LocationSummary) Label() string {
	if s.RecentImageCount == 1 {
		return "1 recent detection"
	}
	return fmt.Sprintf("%d recent detections", s.RecentImageCount)
}

type ActivityLevel string

const (
	ActivityHigh    ActivityLevel = "high"
	ActivityMedium  ActivityLevel = "medium"
	ActivityLow     ActivityLevel = "low"
	ActivityUnknown ActivityLevel = "unknown"
)

type ActivityThresholds struct {
	High   int
	Medium int
}

func (t ActivityThresholds) Level(count int) ActivityLevel {
	switch {
	case count >= t.High:
		return ActivityHigh
	case count >= t.Medium:
		return ActivityMedium
	default:
		return ActivityLow
	}
}

// ActivityCounts tallies locations per level; locations without a summary
// are not counted.
type ActivityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

func (t ActivityThresholds) Count(summaries map[int]LocationSummary) ActivityCounts {
	var counts ActivityCounts
	for _, s := range summaries {
		switch t.Level(s.RecentImageCount) {
		case ActivityHigh:
			counts.High++
		case ActivityMedium:
			counts.Medium++
		default:
			counts.Low++
		}
	}
	return counts
}
