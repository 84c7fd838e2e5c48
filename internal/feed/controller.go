package feed

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"studydeck-backend/internal/models"
)

// State of the swipe pipeline. The controller is idle between gestures,
// dragging while a gesture is live, and briefly committing/reverting when a
// gesture is released.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateCommitting
	StateReverting
)

// Decision is the outcome of releasing a drag.
type Decision int

const (
	DecisionNone Decision = iota // below every threshold, reverted
	DecisionLike
	DecisionDislike
	DecisionUndo
)

var (
	ErrNoCards          = errors.New("feed: no cards left")
	ErrNotDragging      = errors.New("feed: no drag in progress")
	ErrAlreadyDragging  = errors.New("feed: drag already in progress")
	ErrMutationInFlight = errors.New("feed: a rating mutation is still in flight")
	ErrNothingToUndo    = errors.New("feed: history is empty")
	ErrQuizUnanswered   = errors.New("feed: answer the quiz before swiping")
)

// Dispatcher persists rating actions. The controller guarantees exactly one
// ApplyRating per commit; an undo dispatches RevertRating with the reaction
// the card carried before that commit, so a commit/undo round trip restores
// both the rating and the reaction. A plain inverse apply would not: a swipe
// over an existing opposite reaction moves the rating by two, and undoing it
// has to bring that reaction back, not just negate one unit.
type Dispatcher interface {
	ApplyRating(ctx context.Context, cardID uuid.UUID, direction int) (float64, error)
	RevertRating(ctx context.Context, cardID uuid.UUID, direction int, prior *bool) (float64, error)
}

type Config struct {
	// DistanceThreshold is the horizontal (or, for undo, downward) drag
	// distance that commits a decision.
	DistanceThreshold float64
	// VelocityThreshold commits a flick even when the distance threshold was
	// not reached.
	VelocityThreshold float64
	// QuizCooldown keeps quiz cards swipe-locked for a moment after the
	// answer tap so the two gestures cannot collide.
	QuizCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		DistanceThreshold: 120,
		VelocityThreshold: 800,
		QuizCooldown:      400 * time.Millisecond,
	}
}

type commitRecord struct {
	card      *models.RatedCard
	index     int
	direction int
	prior     *bool // reaction in place before this commit
}

// Controller owns the visible card list and drives the swipe → decision →
// optimistic removal → background persistence → optional undo pipeline for
// one session. It is an injectable component, not a singleton; every
// websocket feed session (and every test) constructs its own.
//
// Concurrency: all exported methods are safe for concurrent use, but a
// session is expected to be single-threaded; the mutex mainly fences the
// background dispatch goroutine's completion against the UI-facing calls.
type Controller struct {
	mu         sync.Mutex
	cfg        Config
	dispatcher Dispatcher

	cards   []*models.RatedCard
	state   State
	dragX   float64
	dragY   float64
	history []commitRecord

	inFlight bool
	wg       sync.WaitGroup

	answered map[uuid.UUID]time.Time
	now      func() time.Time
}

func NewController(cards []*models.RatedCard, dispatcher Dispatcher, cfg Config) *Controller {
	if cfg.DistanceThreshold <= 0 {
		cfg.DistanceThreshold = DefaultConfig().DistanceThreshold
	}
	if cfg.VelocityThreshold <= 0 {
		cfg.VelocityThreshold = DefaultConfig().VelocityThreshold
	}
	if cfg.QuizCooldown <= 0 {
		cfg.QuizCooldown = DefaultConfig().QuizCooldown
	}
	return &Controller{
		cfg:        cfg,
		dispatcher: dispatcher,
		cards:      cards,
		state:      StateIdle,
		answered:   make(map[uuid.UUID]time.Time),
		now:        time.Now,
	}
}

// TopCard is the card currently facing the user, nil when the feed is empty.
func (c *Controller) TopCard() *models.RatedCard {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cards) == 0 {
		return nil
	}
	return c.cards[0]
}

func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cards)
}

func (c *Controller) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Wait blocks until the outstanding background mutation, if any, resolves.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// AnswerQuiz marks the quiz card answered, starting the swipe cool-down.
func (c *Controller) AnswerQuiz(cardID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answered[cardID] = c.now()
}

// BeginDrag starts a gesture on the top card. Quiz cards refuse gestures
// until answered and past the cool-down window.
func (c *Controller) BeginDrag() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrAlreadyDragging
	}
	if len(c.cards) == 0 {
		return ErrNoCards
	}

	top := c.cards[0]
	if top.CardType == models.CardTypeQuiz {
		answeredAt, ok := c.answered[top.ID]
		if !ok {
			return ErrQuizUnanswered
		}
		if c.now().Sub(answeredAt) < c.cfg.QuizCooldown {
			return ErrQuizUnanswered
		}
	}

	c.state = StateDragging
	c.dragX, c.dragY = 0, 0
	return nil
}

// Drag updates the live gesture position.
func (c *Controller) Drag(dx, dy float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDragging {
		return ErrNotDragging
	}
	c.dragX, c.dragY = dx, dy
	return nil
}

// Release ends the gesture and resolves it into a decision:
// horizontal distance or velocity past threshold commits in that direction;
// a downward drag past the distance threshold undoes the latest commit when
// history is non-empty; anything else reverts with no mutation.
func (c *Controller) Release(ctx context.Context, velocityX float64) (Decision, error) {
	c.mu.Lock()

	if c.state != StateDragging {
		c.mu.Unlock()
		return DecisionNone, ErrNotDragging
	}

	dx, dy := c.dragX, c.dragY
	horizontal := dx
	if horizontal < 0 {
		horizontal = -horizontal
	}
	vx := velocityX
	if vx < 0 {
		vx = -vx
	}

	switch {
	case horizontal >= c.cfg.DistanceThreshold || vx >= c.cfg.VelocityThreshold:
		direction := 1
		decision := DecisionLike
		if (horizontal >= c.cfg.DistanceThreshold && dx < 0) ||
			(horizontal < c.cfg.DistanceThreshold && velocityX < 0) {
			direction = -1
			decision = DecisionDislike
		}
		err := c.commitLocked(ctx, direction)
		c.mu.Unlock()
		if err != nil {
			return DecisionNone, err
		}
		return decision, nil

	case dy >= c.cfg.DistanceThreshold && len(c.history) > 0:
		err := c.undoLocked(ctx)
		c.mu.Unlock()
		if err != nil {
			return DecisionNone, err
		}
		return DecisionUndo, nil

	default:
		c.state = StateReverting
		c.dragX, c.dragY = 0, 0
		c.state = StateIdle
		c.mu.Unlock()
		return DecisionNone, nil
	}
}

// Undo pops the most recent commit, reinserts its card at the original
// index and dispatches the inverse mutation. LIFO: two undos in a row undo
// the two most recent distinct commits.
func (c *Controller) Undo(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrAlreadyDragging
	}
	return c.undoLocked(ctx)
}

// commitLocked removes the top card optimistically and dispatches the
// rating in the background. At most one mutation may be in flight; further
// swipes are rejected (and the card stays) until it resolves.
func (c *Controller) commitLocked(ctx context.Context, direction int) error {
	if c.inFlight {
		c.state = StateIdle
		c.dragX, c.dragY = 0, 0
		return ErrMutationInFlight
	}

	c.state = StateCommitting
	card := c.cards[0]
	c.cards = c.cards[1:]

	var prior *bool
	if card.IsLike != nil {
		v := *card.IsLike
		prior = &v
	}
	c.history = append(c.history, commitRecord{card: card, index: 0, direction: direction, prior: prior})
	c.state = StateIdle
	c.dragX, c.dragY = 0, 0

	c.dispatch(ctx, card.ID, func(ctx context.Context) (float64, error) {
		return c.dispatcher.ApplyRating(ctx, card.ID, direction)
	})
	return nil
}

func (c *Controller) undoLocked(ctx context.Context) error {
	if len(c.history) == 0 {
		return ErrNothingToUndo
	}
	if c.inFlight {
		return ErrMutationInFlight
	}

	record := c.history[len(c.history)-1]
	c.history = c.history[:len(c.history)-1]

	// Reinsert at the recorded index.
	idx := record.index
	if idx > len(c.cards) {
		idx = len(c.cards)
	}
	c.cards = append(c.cards[:idx], append([]*models.RatedCard{record.card}, c.cards[idx:]...)...)
	c.state = StateIdle
	c.dragX, c.dragY = 0, 0

	c.dispatch(ctx, record.card.ID, func(ctx context.Context) (float64, error) {
		return c.dispatcher.RevertRating(ctx, record.card.ID, record.direction, record.prior)
	})
	return nil
}

// dispatch runs the mutation in the background so the UI stays responsive.
// A failure must not silently revert the optimistic removal; it is logged
// and the card stays gone (the feed reloads fresh state on the next page).
func (c *Controller) dispatch(ctx context.Context, cardID uuid.UUID, op func(context.Context) (float64, error)) {
	c.inFlight = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := op(ctx); err != nil {
			log.Printf("feed: rating dispatch failed for card %s: %v", cardID, err)
		}
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()
}
