package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docqa/console/internal/storage/models"
	"github.com/docqa/console/pkg/logger"
)

const defaultSearchLimit = 50

// Client archives conversation history across sessions.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer avoids SQLITE_BUSY between concurrent sessions.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		confidence REAL,
		sources TEXT,
		response_time_ms INTEGER,
		is_error INTEGER DEFAULT 0,
		selected_doc_count INTEGER,
		queried_doc_count INTEGER,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		session_id TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		feedback_type TEXT NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, message_id),
		FOREIGN KEY (session_id, message_id) REFERENCES messages(session_id, message_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_type ON feedback(feedback_type);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) SaveMessage(ctx context.Context, sessionID string, msg models.Message) error {
	sourcesJSON, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	query := `
		INSERT INTO messages (session_id, message_id, role, content, confidence, sources,
			response_time_ms, is_error, selected_doc_count, queried_doc_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, message_id) DO UPDATE SET
			content = excluded.content,
			confidence = excluded.confidence,
			sources = excluded.sources
	`

	isError := 0
	if msg.Error {
		isError = 1
	}

	_, err = c.db.ExecContext(ctx,
		query,
		sessionID,
		msg.ID,
		string(msg.Role),
		msg.Content,
		msg.Confidence,
		string(sourcesJSON),
		msg.ResponseTimeMS,
		isError,
		msg.SelectedDocCount,
		msg.QueriedDocCount,
		msg.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	logger.Debug("Message archived",
		zap.String("session_id", sessionID),
		zap.Int64("message_id", msg.ID),
		zap.String("role", string(msg.Role)),
	)
	return nil
}

func (c *Client) UpdateFeedback(ctx context.Context, sessionID string, messageID int64, fb models.Feedback) error {
	query := `
		INSERT INTO feedback (session_id, message_id, feedback_type, comment, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, message_id) DO UPDATE SET
			feedback_type = excluded.feedback_type,
			comment = excluded.comment,
			created_at = excluded.created_at
	`

	_, err := c.db.ExecContext(ctx, query, sessionID, messageID, string(fb.Type), fb.Comment, fb.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	logger.Info("Feedback archived",
		zap.String("session_id", sessionID),
		zap.Int64("message_id", messageID),
		zap.String("type", string(fb.Type)),
	)
	return nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session history: %w", err)
	}

	n, _ := res.RowsAffected()
	logger.Info("Session history deleted", zap.String("session_id", sessionID), zap.Int64("messages", n))
	return nil
}

// SessionMessages returns a session's archived conversation in order.
func (c *Client) SessionMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	records, err := c.queryHistory(ctx, `WHERE m.session_id = ? ORDER BY m.message_id ASC`, sessionID)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, r.Message)
	}
	return messages, nil
}

// SearchHistory finds archived messages from any session whose content
// contains term, newest first.
func (c *Client) SearchHistory(ctx context.Context, term string, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"
	return c.queryHistory(ctx,
		`WHERE m.content LIKE ? ESCAPE '\' ORDER BY m.created_at DESC, m.message_id DESC LIMIT ?`,
		pattern, limit,
	)
}

func (c *Client) queryHistory(ctx context.Context, where string, args ...interface{}) ([]models.HistoryRecord, error) {
	query := `
		SELECT m.session_id, m.message_id, m.role, m.content, m.confidence, m.sources,
			m.response_time_ms, m.is_error, m.selected_doc_count, m.queried_doc_count, m.created_at,
			f.feedback_type, f.comment, f.created_at
		FROM messages m
		LEFT JOIN feedback f ON f.session_id = m.session_id AND f.message_id = m.message_id
	` + where

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []models.HistoryRecord
	for rows.Next() {
		var (
			r            models.HistoryRecord
			role         string
			sourcesJSON  sql.NullString
			confidence   sql.NullFloat64
			responseTime sql.NullInt64
			isError      int
			selected     sql.NullInt64
			queried      sql.NullInt64
			createdAt    int64
			fbType       sql.NullString
			fbComment    sql.NullString
			fbCreatedAt  sql.NullInt64
		)

		err := rows.Scan(
			&r.SessionID,
			&r.Message.ID,
			&role,
			&r.Message.Content,
			&confidence,
			&sourcesJSON,
			&responseTime,
			&isError,
			&selected,
			&queried,
			&createdAt,
			&fbType,
			&fbComment,
			&fbCreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Message.Role = models.Role(role)
		r.Message.Confidence = confidence.Float64
		r.Message.ResponseTimeMS = responseTime.Int64
		r.Message.Error = isError != 0
		r.Message.SelectedDocCount = int(selected.Int64)
		r.Message.QueriedDocCount = int(queried.Int64)
		r.Message.Timestamp = time.UnixMilli(createdAt)
		r.SavedAt = r.Message.Timestamp

		if sourcesJSON.Valid && sourcesJSON.String != "" && sourcesJSON.String != "null" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &r.Message.Sources); err != nil {
				logger.Warn("Failed to parse archived sources", zap.Int64("message_id", r.Message.ID), zap.Error(err))
			}
		}

		if fbType.Valid {
			r.Message.Feedback = &models.Feedback{
				Type:      models.FeedbackType(fbType.String),
				Comment:   fbComment.String,
				Timestamp: time.UnixMilli(fbCreatedAt.Int64),
			}
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return records, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
