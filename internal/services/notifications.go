package services

import (
	"context"
	"log"
	"time"

	"studydeck-backend/internal/repository"
)

const notificationPollInterval = 1 * time.Hour

// NotificationScheduler emails users whose streak is one missed day away
// from resetting. Hourly poll; each user is reminded at most once per day.
type NotificationScheduler struct {
	profileRepo *repository.ProfileRepo
	email       *EmailService
	stopChan    chan struct{}
}

func NewNotificationScheduler(profileRepo *repository.ProfileRepo, email *EmailService) *NotificationScheduler {
	return &NotificationScheduler{
		profileRepo: profileRepo,
		email:       email,
		stopChan:    make(chan struct{}),
	}
}

func (s *NotificationScheduler) Start() {
	if s.profileRepo == nil || s.email == nil {
		return
	}

	go s.loop(func(ctx context.Context, now time.Time) {
		s.sendStreakReminders(ctx, now)
	})

	log.Printf("Notification scheduler started")
}

func (s *NotificationScheduler) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *NotificationScheduler) loop(runFn func(ctx context.Context, now time.Time)) {
	// Run on startup as well as by interval.
	runFn(context.Background(), time.Now().UTC())

	ticker := time.NewTicker(notificationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			runFn(context.Background(), time.Now().UTC())
		}
	}
}

func (s *NotificationScheduler) sendStreakReminders(ctx context.Context, now time.Time) {
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	atRisk, err := s.profileRepo.ListStreaksAtRisk(ctx, yesterday, today)
	if err != nil {
		log.Printf("streak reminders: failed to list at-risk streaks: %v", err)
		return
	}

	for _, entry := range atRisk {
		if err := s.email.SendStreakReminder(entry.Email, entry.Username, entry.CurrentStreak); err != nil {
			log.Printf("streak reminders: failed to send to %s: %v", entry.Email, err)
			continue
		}

		if err := s.profileRepo.MarkStreakReminderSent(ctx, entry.UserID, today); err != nil {
			log.Printf("streak reminders: failed to record reminder for user %s: %v", entry.UserID, err)
		}
	}
}
