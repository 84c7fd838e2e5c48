package services

import (
	"testing"
	"time"

	"studydeck-backend/internal/models"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestAdvanceStreak_FirstEver(t *testing.T) {
	meta := AdvanceStreak(models.ProfileMetadata{}, day("2026-08-30"))

	if meta.CurrentStreak != 1 {
		t.Errorf("Expected streak 1, got %d", meta.CurrentStreak)
	}
	if meta.LongestStreak != 1 {
		t.Errorf("Expected longest 1, got %d", meta.LongestStreak)
	}
	if meta.LastStreakDate != "2026-08-30" {
		t.Errorf("Expected last date 2026-08-30, got %q", meta.LastStreakDate)
	}
}

func TestAdvanceStreak_SameDayNoOp(t *testing.T) {
	meta := models.ProfileMetadata{CurrentStreak: 4, LongestStreak: 9, LastStreakDate: "2026-08-30"}

	got := AdvanceStreak(meta, day("2026-08-30"))

	if got != meta {
		t.Errorf("Expected same-day action to leave metadata unchanged, got %+v", got)
	}
}

func TestAdvanceStreak_ConsecutiveDayIncrements(t *testing.T) {
	meta := models.ProfileMetadata{CurrentStreak: 4, LongestStreak: 9, LastStreakDate: "2026-08-29"}

	got := AdvanceStreak(meta, day("2026-08-30"))

	if got.CurrentStreak != 5 {
		t.Errorf("Expected streak 5, got %d", got.CurrentStreak)
	}
	if got.LongestStreak != 9 {
		t.Errorf("Expected longest to stay 9, got %d", got.LongestStreak)
	}
}

func TestAdvanceStreak_GapResetsToOne(t *testing.T) {
	meta := models.ProfileMetadata{CurrentStreak: 12, LongestStreak: 12, LastStreakDate: "2026-08-27"}

	got := AdvanceStreak(meta, day("2026-08-30"))

	if got.CurrentStreak != 1 {
		t.Errorf("Expected streak reset to 1, got %d", got.CurrentStreak)
	}
	if got.LongestStreak != 12 {
		t.Errorf("Expected longest preserved at 12, got %d", got.LongestStreak)
	}
}

func TestAdvanceStreak_NewLongest(t *testing.T) {
	meta := models.ProfileMetadata{CurrentStreak: 7, LongestStreak: 7, LastStreakDate: "2026-08-29"}

	got := AdvanceStreak(meta, day("2026-08-30"))

	if got.CurrentStreak != 8 || got.LongestStreak != 8 {
		t.Errorf("Expected 8/8, got %d/%d", got.CurrentStreak, got.LongestStreak)
	}
}

func TestAdvanceStreak_MonthBoundary(t *testing.T) {
	meta := models.ProfileMetadata{CurrentStreak: 2, LongestStreak: 5, LastStreakDate: "2026-08-31"}

	got := AdvanceStreak(meta, day("2026-09-01"))

	if got.CurrentStreak != 3 {
		t.Errorf("Expected streak 3 across month boundary, got %d", got.CurrentStreak)
	}
}
