package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/pubsub"
	"github.com/docqa/console/internal/storage/models"
	"github.com/docqa/console/pkg/config"
	"github.com/docqa/console/pkg/logger"
)

const (
	DefaultQueryMode        = "balanced"
	DefaultProgressInterval = 2 * time.Second
	DefaultSuggestionLimit  = 5

	recordTimeout = 5 * time.Second
)

// Recorder archives conversation history outside the session. Failures are
// logged and never affect the session.
type Recorder interface {
	SaveMessage(ctx context.Context, sessionID string, msg models.Message) error
	UpdateFeedback(ctx context.Context, sessionID string, messageID int64, fb models.Feedback) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type Option func(*Controller)

func WithQueryMode(mode string) Option {
	return func(c *Controller) {
		if mode != "" {
			c.queryMode = mode
		}
	}
}

func WithProgressInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.progressInterval = d
		}
	}
}

func WithProgressMessages(texts []string) Option {
	return func(c *Controller) {
		if len(texts) > 0 {
			c.progressTexts = append([]string(nil), texts...)
		}
	}
}

func WithSuggestionLimit(n int) Option {
	return func(c *Controller) {
		c.suggestionLimit = n
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithRestoredState seeds the session from a saved snapshot. Only durable
// fields are kept and the document list is refreshed on first use.
func WithRestoredState(s State) Option {
	return func(c *Controller) {
		c.state = s.persistent()
		for _, m := range c.state.Messages {
			if m.ID > c.lastID {
				c.lastID = m.ID
			}
		}
	}
}

// Controller owns one conversation session. All methods are safe for
// concurrent use; the lock is never held across backend calls.
type Controller struct {
	id  string
	svc backend.Service

	queryMode        string
	progressInterval time.Duration
	progressTexts    []string
	suggestionLimit  int
	recorder         Recorder
	now              func() time.Time

	mu     sync.Mutex
	state  State
	lastID int64

	events *pubsub.Broker[Update]
	log    *zap.Logger
}

func NewController(id string, svc backend.Service, opts ...Option) *Controller {
	c := &Controller{
		id:               id,
		svc:              svc,
		queryMode:        DefaultQueryMode,
		progressInterval: DefaultProgressInterval,
		progressTexts:    ProgressMessages,
		suggestionLimit:  DefaultSuggestionLimit,
		now:              time.Now,
		events:           pubsub.NewBroker[Update](),
		log:              logger.Named("session").With(zap.String("session_id", id)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Controller) ID() string {
	return c.id
}

// Snapshot returns a consistent copy of the session state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) Subscribe(ctx context.Context) <-chan pubsub.Event[Update] {
	return c.events.Subscribe(ctx)
}

// Close ends all subscriptions. In-flight operations still complete.
func (c *Controller) Close() {
	c.events.Shutdown()
}

func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.state.Input = text
	c.mu.Unlock()
}

// nextID must be called with mu held. Ids follow the wall clock in
// milliseconds and are bumped on collision.
func (c *Controller) nextID() int64 {
	id := c.now().UnixMilli()
	if id <= c.lastID {
		id = c.lastID + 1
	}
	c.lastID = id
	return id
}

// appendMessage must be called with mu held.
func (c *Controller) appendMessage(msg models.Message) {
	c.state.Messages = append(c.state.Messages, msg)
}

func (c *Controller) publishState() {
	s := c.Snapshot()
	c.events.Publish(pubsub.StateEvent, Update{Phase: s.Phase.String(), Selected: s.Selected})
}

func (c *Controller) record(fn func(ctx context.Context, r Recorder) error) {
	if c.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := fn(ctx, c.recorder); err != nil {
		c.log.Warn("Failed to record history", zap.Error(err))
	}
}

// OptionsFromConfig maps the session config section onto controller options.
func OptionsFromConfig(cfg config.SessionConfig) []Option {
	return []Option{
		WithQueryMode(cfg.QueryMode),
		WithProgressInterval(cfg.ProgressInterval()),
		WithSuggestionLimit(cfg.SuggestionLimit),
	}
}
