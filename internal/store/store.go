// Package store keeps conversations and their messages in a local SQLite
// database. The schema is managed by embedded goose migrations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benaskins/penny/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ErrConversationNotFound is returned when a conversation id does not exist.
var ErrConversationNotFound = errors.New("conversation not found")

const timeLayout = "2006-01-02T15:04:05.000Z"

// Conversation is a titled thread of messages.
type Conversation struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	LLMProvider string    `json:"llm_provider"`
	Messages    []Message `json:"messages"`
}

// Message is one chat turn.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the SQLite-backed conversation store.
type Store struct {
	db *sql.DB
}

// RunMigrations applies the embedded migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens (or creates) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One writer is all a desktop client needs, and it keeps SQLite from
	// returning SQLITE_BUSY between our own connections.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing on success and rolling back
// on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx dbtx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

// CreateConversation inserts a new, empty conversation.
func (s *Store) CreateConversation(ctx context.Context, title, provider string) (*Conversation, error) {
	var c *Conversation
	err := s.withTx(ctx, func(tx dbtx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (title, llm_provider) VALUES (?, ?)`, title, provider)
		if err != nil {
			return fmt.Errorf("inserting conversation: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		c, err = getConversation(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.Messages = []Message{}
	return c, nil
}

// GetConversation returns a conversation with its messages.
func (s *Store) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	c, err := getConversation(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if c.Messages, err = messages(ctx, s.db, id); err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations returns every conversation, newest first, with messages.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, llm_provider FROM conversations ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("selecting conversations: %w", err)
	}
	var result []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if result[i].Messages, err = messages(ctx, s.db, result[i].ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// AddMessage appends a message to a conversation.
func (s *Store) AddMessage(ctx context.Context, conversationID int64, role, content string) (*Message, error) {
	var m *Message
	err := s.withTx(ctx, func(tx dbtx) error {
		if _, err := getConversation(ctx, tx, conversationID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, role, content) VALUES (?, ?, ?)`,
			conversationID, role, content)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		m, err = getMessage(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Messages returns a conversation's messages, oldest first.
func (s *Store) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	if _, err := getConversation(ctx, s.db, conversationID); err != nil {
		return nil, err
	}
	return messages(ctx, s.db, conversationID)
}

// DeleteConversation removes a conversation and all of its messages.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx dbtx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("deleting messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting conversation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %d", ErrConversationNotFound, id)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*Conversation, error) {
	var c Conversation
	var created string
	if err := row.Scan(&c.ID, &c.Title, &created, &c.LLMProvider); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
	}
	c.CreatedAt = t
	return &c, nil
}

func getConversation(ctx context.Context, db dbtx, id int64) (*Conversation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, title, created_at, llm_provider FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrConversationNotFound, id)
	}
	return c, err
}

func scanMessage(row scanner) (*Message, error) {
	var m Message
	var created string
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &created); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", created, err)
	}
	m.CreatedAt = t
	return &m, nil
}

func getMessage(ctx context.Context, db dbtx, id int64) (*Message, error) {
	return scanMessage(db.QueryRowContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages WHERE id = ?`, id))
}

func messages(ctx context.Context, db dbtx, conversationID int64) ([]Message, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("selecting messages: %w", err)
	}
	defer rows.Close()

	result := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}
