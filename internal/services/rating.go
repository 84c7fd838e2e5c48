package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"studydeck-backend/internal/models"
	"studydeck-backend/internal/repository"
)

const (
	// Fan-out factors per unit of card-rating delta direction.
	tagScoreStep      = 0.2
	authorRatingScale = 0.1

	PropagationRetryQueue = "queue:propagation-retry"
)

// Narrow views over the repositories and clients the rating engine touches.
// *pgxpool.Pool, the concrete repos and *redis.Client satisfy them; tests
// substitute in-memory fakes.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type ratingCardStore interface {
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Card, error)
	AdjustRatingTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta float64) (float64, error)
	AdjustReactionCountsTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, likeDelta, dislikeDelta int) error
}

type reactionStore interface {
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, cardID, userID uuid.UUID) (*models.Interaction, error)
	UpsertTx(ctx context.Context, tx pgx.Tx, cardID, userID uuid.UUID, isLike *bool) error
	DeleteTx(ctx context.Context, tx pgx.Tx, cardID, userID uuid.UUID) error
}

type tagScoreStore interface {
	AdjustScoresForCard(ctx context.Context, cardID uuid.UUID, delta float64) error
}

type authorProfileStore interface {
	AdjustRating(ctx context.Context, userID uuid.UUID, delta float64) error
	BumpStreak(ctx context.Context, userID uuid.UUID, advance func(models.ProfileMetadata) models.ProfileMetadata) error
}

type eventBus interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RatingService is the write side of the feed: it classifies a like/dislike/
// undo against the (card,user) interaction ledger, applies the primary card
// rating delta transactionally, then fans the delta out to tag scores, the
// author's profile rating and the acting user's streak. Secondary steps are
// best-effort: a failure there is logged and parked on a retry queue, never
// rolled back into the primary mutation.
type RatingService struct {
	pool         txBeginner
	cardRepo     ratingCardStore
	interactions reactionStore
	tagRepo      tagScoreStore
	profileRepo  authorProfileStore
	redis        eventBus
}

func NewRatingService(
	pool *pgxpool.Pool,
	cardRepo *repository.CardRepo,
	interactions *repository.InteractionRepo,
	tagRepo *repository.TagRepo,
	profileRepo *repository.ProfileRepo,
	redisClient *redis.Client,
) *RatingService {
	return &RatingService{
		pool:         pool,
		cardRepo:     cardRepo,
		interactions: interactions,
		tagRepo:      tagRepo,
		profileRepo:  profileRepo,
		redis:        redisClient,
	}
}

// ratingEvent is the classified outcome of one like/dislike/undo action.
type ratingEvent struct {
	delta     float64
	setLike   *bool // desired is_like after the event; ignored when remove
	remove    bool
	freshLike bool
	noop      bool
}

// classifyRating maps the prior tri-state reaction and the requested action
// onto a net rating delta and the interaction's after-state:
//
//	none     + like        -> +1, is_like=true
//	none     + dislike     -> -1, is_like=false
//	liked    + like        -> -1, removed (toggle-off)
//	liked    + dislike     -> -2, is_like=false
//	disliked + dislike     -> +1, removed (toggle-off)
//	disliked + like        -> +2, is_like=true
//	matching + isUndo=true -> negate the fresh delta, removed
//
// A neutral view (record present, is_like NULL) counts as "none". An undo
// with no matching prior reaction is a stale request and becomes a no-op.
func classifyRating(prior *bool, direction int, isUndo bool) ratingEvent {
	liked := direction > 0

	if isUndo {
		if prior == nil || *prior != liked {
			return ratingEvent{noop: true}
		}
		return ratingEvent{delta: -float64(direction), remove: true}
	}

	if prior == nil {
		like := liked
		return ratingEvent{delta: float64(direction), setLike: &like, freshLike: liked}
	}

	if *prior == liked {
		// Repeating the same reaction toggles it off.
		return ratingEvent{delta: -float64(direction), remove: true}
	}

	// Reversal: undo the old reaction and apply the new one.
	like := liked
	return ratingEvent{delta: 2 * float64(direction), setLike: &like}
}

// afterState is the reaction a non-undo event leaves behind.
func afterState(event ratingEvent) *bool {
	if event.remove {
		return nil
	}
	return event.setLike
}

func reactionEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Apply performs one rating action end to end and returns the card's new
// rating. direction is +1 (like) or -1 (dislike).
func (s *RatingService) Apply(ctx context.Context, cardID, actorID uuid.UUID, direction int, isUndo bool) (float64, error) {
	if direction != 1 && direction != -1 {
		return 0, &ValidationError{Fields: map[string]string{"ratingChange": "must be 1 or -1"}}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	card, err := s.cardRepo.GetByIDTx(ctx, tx, cardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &NotFoundError{Message: "Card not found"}
		}
		return 0, err
	}

	prior, err := s.interactions.GetForUpdateTx(ctx, tx, cardID, actorID)
	if err != nil {
		return 0, err
	}

	var priorLike *bool
	if prior != nil {
		priorLike = prior.IsLike
	}

	event := classifyRating(priorLike, direction, isUndo)
	if event.noop {
		// Nothing to undo; report the current rating unchanged.
		return card.Rating, tx.Commit(ctx)
	}

	likeDelta, dislikeDelta := reactionCountDeltas(priorLike, event)
	return s.mutate(ctx, tx, card, actorID, event, likeDelta, dislikeDelta)
}

// Revert rolls back one committed swipe, restoring both the card rating and
// the actor's reaction as they were before that swipe. prior is the reaction
// recorded by the caller at commit time. When the interaction no longer
// matches the state the swipe left behind (it changed through another
// surface since), the revert is stale and becomes a no-op.
func (s *RatingService) Revert(ctx context.Context, cardID, actorID uuid.UUID, direction int, prior *bool) (float64, error) {
	if direction != 1 && direction != -1 {
		return 0, &ValidationError{Fields: map[string]string{"ratingChange": "must be 1 or -1"}}
	}

	forward := classifyRating(prior, direction, false)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	card, err := s.cardRepo.GetByIDTx(ctx, tx, cardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &NotFoundError{Message: "Card not found"}
		}
		return 0, err
	}

	current, err := s.interactions.GetForUpdateTx(ctx, tx, cardID, actorID)
	if err != nil {
		return 0, err
	}
	var currentLike *bool
	if current != nil {
		currentLike = current.IsLike
	}

	if !reactionEqual(currentLike, afterState(forward)) {
		return card.Rating, tx.Commit(ctx)
	}

	event := ratingEvent{delta: -forward.delta}
	if prior == nil {
		event.remove = true
	} else {
		restored := *prior
		event.setLike = &restored
	}

	likeDelta, dislikeDelta := reactionCountDeltas(prior, forward)
	return s.mutate(ctx, tx, card, actorID, event, -likeDelta, -dislikeDelta)
}

// mutate writes the primary rating delta, the interaction after-state and
// the reaction counters in the open transaction, commits, then fans out.
func (s *RatingService) mutate(ctx context.Context, tx pgx.Tx, card *models.Card, actorID uuid.UUID, event ratingEvent, likeDelta, dislikeDelta int) (float64, error) {
	newRating, err := s.cardRepo.AdjustRatingTx(ctx, tx, card.ID, event.delta)
	if err != nil {
		return 0, err
	}

	if event.remove {
		err = s.interactions.DeleteTx(ctx, tx, card.ID, actorID)
	} else {
		err = s.interactions.UpsertTx(ctx, tx, card.ID, actorID, event.setLike)
	}
	if err != nil {
		return 0, err
	}

	if likeDelta != 0 || dislikeDelta != 0 {
		if err := s.cardRepo.AdjustReactionCountsTx(ctx, tx, card.ID, likeDelta, dislikeDelta); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	// Primary mutation is durable from here on; everything below is
	// best-effort propagation.
	s.propagate(ctx, card, actorID, event, newRating)

	return newRating, nil
}

// reactionCountDeltas derives the like/dislike counter movement from the
// reaction's before and after state.
func reactionCountDeltas(prior *bool, event ratingEvent) (likes, dislikes int) {
	if prior != nil {
		if *prior {
			likes--
		} else {
			dislikes--
		}
	}
	if !event.remove && event.setLike != nil {
		if *event.setLike {
			likes++
		} else {
			dislikes++
		}
	}
	return likes, dislikes
}

func (s *RatingService) propagate(ctx context.Context, card *models.Card, actorID uuid.UUID, event ratingEvent, newRating float64) {
	tagDelta := tagScoreStep
	if event.delta < 0 {
		tagDelta = -tagScoreStep
	}
	if err := s.tagRepo.AdjustScoresForCard(ctx, card.ID, tagDelta); err != nil {
		log.Printf("rating propagation: tag scores failed for card %s: %v", card.ID, err)
		s.enqueueRetry(ctx, models.PropagationTask{
			Step: "tag", CardID: card.ID, Delta: tagDelta,
		})
	}

	authorDelta := event.delta * authorRatingScale
	if err := s.profileRepo.AdjustRating(ctx, card.UserID, authorDelta); err != nil {
		log.Printf("rating propagation: author profile failed for user %s: %v", card.UserID, err)
		s.enqueueRetry(ctx, models.PropagationTask{
			Step: "author_profile", CardID: card.ID, AuthorID: card.UserID, Delta: authorDelta,
		})
	}

	if event.freshLike {
		if err := s.profileRepo.BumpStreak(ctx, actorID, func(meta models.ProfileMetadata) models.ProfileMetadata {
			return AdvanceStreak(meta, time.Now().UTC())
		}); err != nil {
			log.Printf("rating propagation: streak failed for user %s: %v", actorID, err)
			s.enqueueRetry(ctx, models.PropagationTask{
				Step: "streak", CardID: card.ID, ActorID: actorID,
			})
		}
	}

	s.publishCardRated(ctx, card, event, newRating)
}

func (s *RatingService) enqueueRetry(ctx context.Context, task models.PropagationTask) {
	task.EnqueuedAt = time.Now().Unix()
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := s.redis.LPush(ctx, PropagationRetryQueue, string(data)).Err(); err != nil {
		log.Printf("rating propagation: failed to enqueue %s retry: %v", task.Step, err)
	}
}

// RetryTask replays one parked propagation step. Used by the worker pool.
func (s *RatingService) RetryTask(ctx context.Context, task models.PropagationTask) error {
	switch task.Step {
	case "tag":
		return s.tagRepo.AdjustScoresForCard(ctx, task.CardID, task.Delta)
	case "author_profile":
		return s.profileRepo.AdjustRating(ctx, task.AuthorID, task.Delta)
	case "streak":
		// Replays on a later day than the original like are skipped; the
		// streak date comparison is only meaningful on the day of the action.
		day := time.Unix(task.EnqueuedAt, 0).UTC()
		if day.Format(streakDateLayout) != time.Now().UTC().Format(streakDateLayout) {
			return nil
		}
		return s.profileRepo.BumpStreak(ctx, task.ActorID, func(meta models.ProfileMetadata) models.ProfileMetadata {
			return AdvanceStreak(meta, day)
		})
	default:
		return fmt.Errorf("unknown propagation step %q", task.Step)
	}
}

func (s *RatingService) publishCardRated(ctx context.Context, card *models.Card, event ratingEvent, newRating float64) {
	direction := 1
	if event.delta < 0 {
		direction = -1
	}
	msg := models.WSMessage{
		Type: "card_rated",
		Payload: models.CardRatedEvent{
			CardID:    card.ID,
			Direction: direction,
			NewRating: newRating,
		},
	}
	data, _ := json.Marshal(msg)
	s.redis.Publish(ctx, fmt.Sprintf("user_updates:%s", card.UserID.String()), string(data))
}
