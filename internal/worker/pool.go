package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"studydeck-backend/internal/models"
	"studydeck-backend/internal/services"
)

const maxPropagationAttempts = 3

// Pool drains the propagation retry queue. Secondary rating effects (tag
// scores, author profile, streaks) that failed inline land here and are
// replayed until they stick or exhaust their attempts.
type Pool struct {
	redis       *redis.Client
	rating      *services.RatingService
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, rating *services.RatingService, workerCount int) *Pool {
	return &Pool{
		redis:       redisClient,
		rating:      rating,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, services.PropagationRetryQueue).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var task models.PropagationTask
		if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
			log.Printf("Worker %d: failed to parse propagation task: %v", id, err)
			continue
		}

		// Dedup lock so two workers never replay the same task
		lockKey := fmt.Sprintf("propagation_lock:%s:%s:%s", task.Step, task.CardID, task.ActorID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", time.Minute).Result()
		if err != nil || !locked {
			continue
		}

		if err := p.rating.RetryTask(ctx, task); err != nil {
			p.handleFailure(task, err)
		} else {
			log.Printf("Worker %d: replayed %s propagation for card %s", id, task.Step, task.CardID)
		}

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) handleFailure(task models.PropagationTask, err error) {
	task.Attempts++

	if task.Attempts >= maxPropagationAttempts {
		log.Printf("✗ Propagation step %s for card %s dropped after %d attempts: %v",
			task.Step, task.CardID, task.Attempts, err)
		return
	}

	log.Printf("Propagation step %s for card %s failed (attempt %d): %v — retrying",
		task.Step, task.CardID, task.Attempts, err)

	taskBytes, _ := json.Marshal(task)
	backoff := time.Duration(1<<uint(task.Attempts)) * time.Second
	time.AfterFunc(backoff, func() {
		p.redis.LPush(context.Background(), services.PropagationRetryQueue, string(taskBytes))
	})
}
