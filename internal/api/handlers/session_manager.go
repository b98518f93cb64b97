package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docqa/console/internal/backend"
	"github.com/docqa/console/internal/metrics"
	"github.com/docqa/console/internal/session"
	"github.com/docqa/console/internal/storage/models"
	"github.com/docqa/console/pkg/logger"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
)

// SnapshotStore keeps session state across gateway restarts.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, sessionID string, snapshot interface{}, ttl time.Duration) error
	GetSnapshot(ctx context.Context, sessionID string, out interface{}) (bool, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error
}

// HistoryStore is the conversation archive.
type HistoryStore interface {
	session.Recorder
	SessionMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	SearchHistory(ctx context.Context, term string, limit int) ([]models.HistoryRecord, error)
}

type ManagerConfig struct {
	Service     backend.Service
	Snapshots   SnapshotStore
	History     HistoryStore
	SnapshotTTL time.Duration
	Options     []session.Option
}

// SessionManager owns the controllers of every live gateway session.
type SessionManager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*session.Controller

	log *zap.Logger
}

func NewSessionManager(cfg ManagerConfig) *SessionManager {
	if cfg.SnapshotTTL == 0 {
		cfg.SnapshotTTL = 12 * time.Hour
	}

	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*session.Controller),
		log:      logger.Named("sessions"),
	}
}

func (m *SessionManager) History() HistoryStore {
	return m.cfg.History
}

func (m *SessionManager) Create() *session.Controller {
	id := uuid.NewString()
	ctrl := m.newController(id)

	m.mu.Lock()
	m.sessions[id] = ctrl
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	m.log.Info("Session created", zap.String("session_id", id))
	return ctrl
}

// Get returns a live session, resuming it from a snapshot or the archive
// when the gateway no longer holds it. id may alias a fiber request buffer
// and is copied before it is kept.
func (m *SessionManager) Get(ctx context.Context, id string) (*session.Controller, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidSessionID
	}
	id = utils.CopyString(id)

	m.mu.Lock()
	ctrl, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return ctrl, nil
	}

	state, found, err := m.restore(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another request may have resumed the same session meanwhile.
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}

	ctrl = m.newController(id, session.WithRestoredState(state))
	m.sessions[id] = ctrl
	metrics.ActiveSessions.Set(float64(len(m.sessions)))

	m.log.Info("Session resumed",
		zap.String("session_id", id),
		zap.Int("messages", len(state.Messages)),
	)
	return ctrl, nil
}

func (m *SessionManager) restore(ctx context.Context, id string) (session.State, bool, error) {
	var state session.State

	if m.cfg.Snapshots != nil {
		found, err := m.cfg.Snapshots.GetSnapshot(ctx, id, &state)
		if err != nil {
			m.log.Warn("Failed to load session snapshot", zap.String("session_id", id), zap.Error(err))
		} else if found {
			return state, true, nil
		}
	}

	if m.cfg.History != nil {
		msgs, err := m.cfg.History.SessionMessages(ctx, id)
		if err != nil {
			return state, false, fmt.Errorf("failed to load session history: %w", err)
		}
		if len(msgs) > 0 {
			state.Messages = msgs
			return state, true, nil
		}
	}

	return state, false, nil
}

// Persist saves the session's durable state. Failures are logged only.
func (m *SessionManager) Persist(ctx context.Context, ctrl *session.Controller) {
	if m.cfg.Snapshots == nil {
		return
	}

	err := m.cfg.Snapshots.SaveSnapshot(ctx, ctrl.ID(), ctrl.Snapshot(), m.cfg.SnapshotTTL)
	if err != nil {
		m.log.Warn("Failed to save session snapshot", zap.String("session_id", ctrl.ID()), zap.Error(err))
	}
}

// Remove ends a session and drops its snapshot. The archive is kept.
func (m *SessionManager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	ctrl, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	ctrl.Close()
	metrics.ActiveSessions.Set(float64(count))

	if m.cfg.Snapshots != nil {
		if err := m.cfg.Snapshots.DeleteSnapshot(ctx, id); err != nil {
			m.log.Warn("Failed to delete session snapshot", zap.String("session_id", id), zap.Error(err))
		}
	}

	m.log.Info("Session closed", zap.String("session_id", id))
	return nil
}

func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown snapshots and closes every session.
func (m *SessionManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*session.Controller, 0, len(m.sessions))
	for _, ctrl := range m.sessions {
		sessions = append(sessions, ctrl)
	}
	m.sessions = make(map[string]*session.Controller)
	m.mu.Unlock()

	for _, ctrl := range sessions {
		m.Persist(ctx, ctrl)
		ctrl.Close()
	}

	metrics.ActiveSessions.Set(0)
	m.log.Info("Sessions shut down", zap.Int("count", len(sessions)))
}

func (m *SessionManager) newController(id string, extra ...session.Option) *session.Controller {
	opts := append([]session.Option{}, m.cfg.Options...)
	if m.cfg.History != nil {
		opts = append(opts, session.WithRecorder(m.cfg.History))
	}
	opts = append(opts, extra...)
	return session.NewController(id, m.cfg.Service, opts...)
}
