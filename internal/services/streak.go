package services

import (
	"time"

	"studydeck-backend/internal/models"
)

const streakDateLayout = "2006-01-02"

// AdvanceStreak applies one day's engagement to the streak counters. The
// streak moves at most once per calendar day: a second qualifying action on
// the same day is a no-op, an action the day after the last one increments,
// anything else (including the very first action) resets to 1.
// LongestStreak keeps the maximum ever reached.
func AdvanceStreak(meta models.ProfileMetadata, today time.Time) models.ProfileMetadata {
	day := today.Format(streakDateLayout)

	if meta.LastStreakDate == day {
		return meta
	}

	yesterday := today.AddDate(0, 0, -1).Format(streakDateLayout)
	if meta.LastStreakDate == yesterday {
		meta.CurrentStreak++
	} else {
		meta.CurrentStreak = 1
	}
	meta.LastStreakDate = day

	if meta.CurrentStreak > meta.LongestStreak {
		meta.LongestStreak = meta.CurrentStreak
	}
	return meta
}
