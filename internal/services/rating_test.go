package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"studydeck-backend/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestClassifyRating_FreshReactions(t *testing.T) {
	like := classifyRating(nil, 1, false)
	if like.delta != 1 || like.setLike == nil || !*like.setLike || !like.freshLike || like.remove || like.noop {
		t.Errorf("fresh like: got %+v", like)
	}

	dislike := classifyRating(nil, -1, false)
	if dislike.delta != -1 || dislike.setLike == nil || *dislike.setLike || dislike.freshLike || dislike.remove {
		t.Errorf("fresh dislike: got %+v", dislike)
	}
}

func TestClassifyRating_ToggleOff(t *testing.T) {
	// Liking an already-liked card withdraws the like.
	likeOff := classifyRating(boolPtr(true), 1, false)
	if likeOff.delta != -1 || !likeOff.remove || likeOff.freshLike {
		t.Errorf("like toggle-off: got %+v", likeOff)
	}

	// Disliking an already-disliked card withdraws the dislike.
	dislikeOff := classifyRating(boolPtr(false), -1, false)
	if dislikeOff.delta != 1 || !dislikeOff.remove {
		t.Errorf("dislike toggle-off: got %+v", dislikeOff)
	}
}

func TestClassifyRating_Reversal(t *testing.T) {
	// dislike -> like swings the rating by +2.
	toLike := classifyRating(boolPtr(false), 1, false)
	if toLike.delta != 2 || toLike.setLike == nil || !*toLike.setLike || toLike.remove {
		t.Errorf("dislike->like: got %+v", toLike)
	}
	// A reversal is not a fresh like; it must not advance the streak.
	if toLike.freshLike {
		t.Error("dislike->like must not count as a fresh like")
	}

	// like -> dislike swings by -2.
	toDislike := classifyRating(boolPtr(true), -1, false)
	if toDislike.delta != -2 || toDislike.setLike == nil || *toDislike.setLike {
		t.Errorf("like->dislike: got %+v", toDislike)
	}
}

func TestClassifyRating_Undo(t *testing.T) {
	undoLike := classifyRating(boolPtr(true), 1, true)
	if undoLike.delta != -1 || !undoLike.remove || undoLike.noop {
		t.Errorf("undo like: got %+v", undoLike)
	}

	undoDislike := classifyRating(boolPtr(false), -1, true)
	if undoDislike.delta != 1 || !undoDislike.remove {
		t.Errorf("undo dislike: got %+v", undoDislike)
	}
}

func TestClassifyRating_StaleUndoIsNoop(t *testing.T) {
	tests := []struct {
		name      string
		prior     *bool
		direction int
	}{
		{"no prior reaction", nil, 1},
		{"prior is dislike, undoing a like", boolPtr(false), 1},
		{"prior is like, undoing a dislike", boolPtr(true), -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyRating(tc.prior, tc.direction, true)
			if !got.noop {
				t.Errorf("Expected noop, got %+v", got)
			}
			if got.delta != 0 {
				t.Errorf("Stale undo must not move the rating, got delta %v", got.delta)
			}
		})
	}
}

func TestClassifyRating_ToggleIdempotence(t *testing.T) {
	// like then like again nets to zero.
	first := classifyRating(nil, 1, false)
	second := classifyRating(boolPtr(true), 1, false)
	if first.delta+second.delta != 0 {
		t.Errorf("like/like should net 0, got %v", first.delta+second.delta)
	}

	// dislike then dislike again nets to zero.
	first = classifyRating(nil, -1, false)
	second = classifyRating(boolPtr(false), -1, false)
	if first.delta+second.delta != 0 {
		t.Errorf("dislike/dislike should net 0, got %v", first.delta+second.delta)
	}
}

func TestReactionCountDeltas(t *testing.T) {
	tests := []struct {
		name         string
		prior        *bool
		direction    int
		isUndo       bool
		wantLikes    int
		wantDislikes int
	}{
		{"fresh like", nil, 1, false, 1, 0},
		{"fresh dislike", nil, -1, false, 0, 1},
		{"like toggled off", boolPtr(true), 1, false, -1, 0},
		{"dislike toggled off", boolPtr(false), -1, false, 0, -1},
		{"dislike reversed to like", boolPtr(false), 1, false, 1, -1},
		{"like reversed to dislike", boolPtr(true), -1, false, -1, 1},
		{"like undone", boolPtr(true), 1, true, -1, 0},
		{"stale undo leaves counters alone", nil, 1, true, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event := classifyRating(tc.prior, tc.direction, tc.isUndo)
			likes, dislikes := reactionCountDeltas(tc.prior, event)
			if likes != tc.wantLikes || dislikes != tc.wantDislikes {
				t.Errorf("deltas = (%d, %d), want (%d, %d)", likes, dislikes, tc.wantLikes, tc.wantDislikes)
			}
		})
	}
}

// In-memory stand-ins for the transaction, repositories and Redis client so
// the full apply/revert/propagate flow runs without a database.

type fakeTx struct{ pgx.Tx }

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakePool struct{}

func (fakePool) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type fakeCardStore struct {
	card     *models.Card
	rating   float64
	likes    int
	dislikes int
}

func (f *fakeCardStore) GetByIDTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Card, error) {
	if f.card == nil || f.card.ID != id {
		return nil, pgx.ErrNoRows
	}
	c := *f.card
	c.Rating = f.rating
	return &c, nil
}

func (f *fakeCardStore) AdjustRatingTx(ctx context.Context, _ pgx.Tx, id uuid.UUID, delta float64) (float64, error) {
	f.rating += delta
	return f.rating, nil
}

func (f *fakeCardStore) AdjustReactionCountsTx(ctx context.Context, _ pgx.Tx, id uuid.UUID, likeDelta, dislikeDelta int) error {
	f.likes += likeDelta
	f.dislikes += dislikeDelta
	return nil
}

// fakeReactionStore keys on card only; every test acts as a single user.
// A present key with a nil value models a neutral view row.
type fakeReactionStore struct {
	state map[uuid.UUID]*bool
}

func (f *fakeReactionStore) GetForUpdateTx(ctx context.Context, _ pgx.Tx, cardID, userID uuid.UUID) (*models.Interaction, error) {
	v, ok := f.state[cardID]
	if !ok {
		return nil, nil
	}
	return &models.Interaction{CardID: cardID, UserID: userID, IsLike: v}, nil
}

func (f *fakeReactionStore) UpsertTx(ctx context.Context, _ pgx.Tx, cardID, userID uuid.UUID, isLike *bool) error {
	if isLike == nil {
		f.state[cardID] = nil
		return nil
	}
	v := *isLike
	f.state[cardID] = &v
	return nil
}

func (f *fakeReactionStore) DeleteTx(ctx context.Context, _ pgx.Tx, cardID, userID uuid.UUID) error {
	delete(f.state, cardID)
	return nil
}

type fakeTagStore struct {
	deltas []float64
	err    error
}

func (f *fakeTagStore) AdjustScoresForCard(ctx context.Context, cardID uuid.UUID, delta float64) error {
	if f.err != nil {
		return f.err
	}
	f.deltas = append(f.deltas, delta)
	return nil
}

type fakeProfileStore struct {
	ratingDeltas []float64
	streakBumps  int
}

func (f *fakeProfileStore) AdjustRating(ctx context.Context, userID uuid.UUID, delta float64) error {
	f.ratingDeltas = append(f.ratingDeltas, delta)
	return nil
}

func (f *fakeProfileStore) BumpStreak(ctx context.Context, userID uuid.UUID, advance func(models.ProfileMetadata) models.ProfileMetadata) error {
	advance(models.ProfileMetadata{})
	f.streakBumps++
	return nil
}

type fakeBus struct {
	pushes    []string
	published []string
}

func (f *fakeBus) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		f.pushes = append(f.pushes, fmt.Sprint(v))
	}
	return redis.NewIntResult(int64(len(f.pushes)), nil)
}

func (f *fakeBus) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published = append(f.published, fmt.Sprint(message))
	return redis.NewIntResult(1, nil)
}

type ratingHarness struct {
	svc       *RatingService
	cards     *fakeCardStore
	reactions *fakeReactionStore
	tags      *fakeTagStore
	profiles  *fakeProfileStore
	bus       *fakeBus
}

func newRatingHarness(card *models.Card) *ratingHarness {
	h := &ratingHarness{
		cards:     &fakeCardStore{card: card, rating: card.Rating},
		reactions: &fakeReactionStore{state: make(map[uuid.UUID]*bool)},
		tags:      &fakeTagStore{},
		profiles:  &fakeProfileStore{},
		bus:       &fakeBus{},
	}
	h.svc = &RatingService{
		pool:         fakePool{},
		cardRepo:     h.cards,
		interactions: h.reactions,
		tagRepo:      h.tags,
		profileRepo:  h.profiles,
		redis:        h.bus,
	}
	return h
}

func testCard() *models.Card {
	return &models.Card{ID: uuid.New(), UserID: uuid.New(), CardType: models.CardTypeStickyNote}
}

func TestApplyFreshLikeFansOut(t *testing.T) {
	card := testCard()
	h := newRatingHarness(card)
	actor := uuid.New()

	rating, err := h.svc.Apply(context.Background(), card.ID, actor, 1, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rating != 1 {
		t.Errorf("Expected rating 1, got %v", rating)
	}
	if len(h.tags.deltas) != 1 || h.tags.deltas[0] != tagScoreStep {
		t.Errorf("Expected one tag delta of %v, got %v", tagScoreStep, h.tags.deltas)
	}
	if len(h.profiles.ratingDeltas) != 1 || h.profiles.ratingDeltas[0] != authorRatingScale {
		t.Errorf("Expected author delta %v, got %v", authorRatingScale, h.profiles.ratingDeltas)
	}
	if h.profiles.streakBumps != 1 {
		t.Errorf("Fresh like must bump the streak once, got %d", h.profiles.streakBumps)
	}
	if h.cards.likes != 1 || h.cards.dislikes != 0 {
		t.Errorf("Counters = (%d, %d), want (1, 0)", h.cards.likes, h.cards.dislikes)
	}
}

func TestApplyFreshDislikeFansOut(t *testing.T) {
	card := testCard()
	h := newRatingHarness(card)

	rating, err := h.svc.Apply(context.Background(), card.ID, uuid.New(), -1, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rating != -1 {
		t.Errorf("Expected rating -1, got %v", rating)
	}
	if len(h.tags.deltas) != 1 || h.tags.deltas[0] != -tagScoreStep {
		t.Errorf("Expected tag delta %v, got %v", -tagScoreStep, h.tags.deltas)
	}
	if len(h.profiles.ratingDeltas) != 1 || h.profiles.ratingDeltas[0] != -authorRatingScale {
		t.Errorf("Expected author delta %v, got %v", -authorRatingScale, h.profiles.ratingDeltas)
	}
	if h.profiles.streakBumps != 0 {
		t.Errorf("A dislike must not bump the streak, got %d", h.profiles.streakBumps)
	}
}

func TestApplyReversalFanOutIsFlat(t *testing.T) {
	card := testCard()
	h := newRatingHarness(card)
	actor := uuid.New()
	h.reactions.state[card.ID] = boolPtr(false)

	// dislike -> like moves the rating by 2, but the tag step stays flat and
	// the author scaling follows the full delta.
	rating, err := h.svc.Apply(context.Background(), card.ID, actor, 1, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rating != 2 {
		t.Errorf("Expected rating 2, got %v", rating)
	}
	if len(h.tags.deltas) != 1 || h.tags.deltas[0] != tagScoreStep {
		t.Errorf("Reversal tag delta must stay %v, got %v", tagScoreStep, h.tags.deltas)
	}
	if len(h.profiles.ratingDeltas) != 1 || h.profiles.ratingDeltas[0] != 2*authorRatingScale {
		t.Errorf("Expected author delta %v, got %v", 2*authorRatingScale, h.profiles.ratingDeltas)
	}
	if h.profiles.streakBumps != 0 {
		t.Error("A reversal is not a fresh like; it must not bump the streak")
	}
}

func TestApplyTagFailureParksRetryTask(t *testing.T) {
	card := testCard()
	h := newRatingHarness(card)
	h.tags.err = errors.New("tags table unavailable")

	if _, err := h.svc.Apply(context.Background(), card.ID, uuid.New(), 1, false); err != nil {
		t.Fatalf("A propagation failure must not fail the apply: %v", err)
	}

	if len(h.pushesByStep("tag")) != 1 {
		t.Fatalf("Expected one parked tag task, got pushes %v", h.bus.pushes)
	}
	task := h.pushesByStep("tag")[0]
	if task.CardID != card.ID || task.Delta != tagScoreStep {
		t.Errorf("Parked task wrong: %+v", task)
	}
	// The author profile step still runs.
	if len(h.profiles.ratingDeltas) != 1 {
		t.Errorf("Author step must still run, got %v", h.profiles.ratingDeltas)
	}
}

func (h *ratingHarness) pushesByStep(step string) []models.PropagationTask {
	var out []models.PropagationTask
	for _, raw := range h.bus.pushes {
		var task models.PropagationTask
		if err := json.Unmarshal([]byte(raw), &task); err == nil && task.Step == step {
			out = append(out, task)
		}
	}
	return out
}

func TestPublishedRatingIsAuthoritative(t *testing.T) {
	card := testCard()
	card.Rating = 4
	h := newRatingHarness(card)

	rating, err := h.svc.Apply(context.Background(), card.ID, uuid.New(), 1, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rating != 5 {
		t.Fatalf("Expected rating 5, got %v", rating)
	}

	if len(h.bus.published) != 1 {
		t.Fatalf("Expected one published event, got %d", len(h.bus.published))
	}
	var msg struct {
		Type    string                `json:"type"`
		Payload models.CardRatedEvent `json:"payload"`
	}
	if err := json.Unmarshal([]byte(h.bus.published[0]), &msg); err != nil {
		t.Fatalf("Unmarshal published event: %v", err)
	}
	if msg.Type != "card_rated" || msg.Payload.CardID != card.ID {
		t.Errorf("Unexpected event: %+v", msg)
	}
	if msg.Payload.NewRating != 5 {
		t.Errorf("Published rating %v must match the stored rating 5", msg.Payload.NewRating)
	}
	if msg.Payload.Direction != 1 {
		t.Errorf("Expected direction 1, got %d", msg.Payload.Direction)
	}
}

func TestRevertAfterReversalRestoresDislike(t *testing.T) {
	card := testCard()
	h := newRatingHarness(card)
	actor := uuid.New()
	h.reactions.state[card.ID] = boolPtr(false)

	if _, err := h.svc.Apply(context.Background(), card.ID, actor, 1, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rating, err := h.svc.Revert(context.Background(), card.ID, actor, 1, boolPtr(false))
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if rating != 0 {
		t.Errorf("Commit and revert must net 0, got %v", rating)
	}
	got, ok := h.reactions.state[card.ID]
	if !ok || got == nil || *got {
		t.Errorf("Prior dislike must be reinstated, got %v (present=%t)", got, ok)
	}
	if h.cards.likes != 0 || h.cards.dislikes != 0 {
		t.Errorf("Counters must return to (0, 0), got (%d, %d)", h.cards.likes, h.cards.dislikes)
	}
}

func TestRevertAfterToggleOffRestoresLike(t *testing.T) {
	card := testCard()
	card.Rating = 3
	h := newRatingHarness(card)
	actor := uuid.New()
	h.reactions.state[card.ID] = boolPtr(true)

	// Liking an already-liked card withdraws the like (-1)...
	if _, err := h.svc.Apply(context.Background(), card.ID, actor, 1, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if h.cards.rating != 2 {
		t.Fatalf("Toggle-off must move rating to 2, got %v", h.cards.rating)
	}

	// ...and the revert puts both the point and the like back.
	rating, err := h.svc.Revert(context.Background(), card.ID, actor, 1, boolPtr(true))
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if rating != 3 {
		t.Errorf("Commit and revert must net 0, got rating %v, want 3", rating)
	}
	got, ok := h.reactions.state[card.ID]
	if !ok || got == nil || !*got {
		t.Errorf("Prior like must be reinstated, got %v (present=%t)", got, ok)
	}
	if h.cards.likes != 0 || h.cards.dislikes != 0 {
		t.Errorf("Counters must return to (0, 0), got (%d, %d)", h.cards.likes, h.cards.dislikes)
	}
}

func TestRevertAfterFreshLikeRemovesReaction(t *testing.T) {
	card := testCard()
	h := newRatingHarness(card)
	actor := uuid.New()

	if _, err := h.svc.Apply(context.Background(), card.ID, actor, 1, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	rating, err := h.svc.Revert(context.Background(), card.ID, actor, 1, nil)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if rating != 0 {
		t.Errorf("Commit and revert must net 0, got %v", rating)
	}
	if _, ok := h.reactions.state[card.ID]; ok {
		t.Error("Reverting a fresh like must remove the reaction")
	}
}

func TestRevertSkipsWhenReactionChangedSince(t *testing.T) {
	card := testCard()
	h := newRatingHarness(card)
	actor := uuid.New()

	if _, err := h.svc.Apply(context.Background(), card.ID, actor, 1, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// The reaction changes through another surface before the revert lands.
	h.reactions.state[card.ID] = boolPtr(false)

	rating, err := h.svc.Revert(context.Background(), card.ID, actor, 1, nil)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if rating != 1 {
		t.Errorf("Stale revert must leave the rating alone, got %v", rating)
	}
	if got := h.reactions.state[card.ID]; got == nil || *got {
		t.Error("Stale revert must not touch the interfering reaction")
	}
	if len(h.bus.published) != 1 {
		t.Errorf("Stale revert must not publish, got %d events", len(h.bus.published))
	}
}
