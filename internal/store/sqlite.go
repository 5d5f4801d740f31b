package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/balaji-balu/codeboard/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages(
	id INTEGER PRIMARY KEY,
	code TEXT NOT NULL,
	has_code INTEGER NOT NULL,
	ts INTEGER NOT NULL,
	time TEXT NOT NULL,
	node_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta(k TEXT PRIMARY KEY, v INTEGER NOT NULL);
INSERT OR IGNORE INTO meta(k, v) VALUES('last_id', 0);`

// SQLite persists messages in a single-file database so a store restart
// does not reset ids.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Append(ctx context.Context, code string, timestamp int64, nodeID string) (model.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, err
	}
	defer tx.Rollback()

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT v FROM meta WHERE k='last_id'`).Scan(&last); err != nil {
		return model.Message{}, fmt.Errorf("read last_id: %w", err)
	}
	msg, err := newMessage(last+1, code, timestamp, nodeID)
	if err != nil {
		return model.Message{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages(id, code, has_code, ts, time, node_id) VALUES(?,?,?,?,?,?)`,
		msg.ID, msg.Code, msg.HasCode, msg.Timestamp, msg.Time, msg.NodeID,
	); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meta SET v=? WHERE k='last_id'`, msg.ID); err != nil {
		return model.Message{}, fmt.Errorf("bump last_id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id <= ?`, msg.ID-Retention); err != nil {
		return model.Message{}, fmt.Errorf("trim messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

// Since reads last_id and the rows in one transaction so no message in the
// answer is newer than its last_id.
func (s *SQLite) Since(ctx context.Context, id int64) (model.PollResponse, error) {
	out := model.PollResponse{Messages: []model.Message{}}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return out, err
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `SELECT v FROM meta WHERE k='last_id'`).Scan(&out.LastID); err != nil {
		return out, fmt.Errorf("read last_id: %w", err)
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT id, code, has_code, ts, time, node_id FROM messages WHERE id > ? AND id <= ? ORDER BY id`,
		id, out.LastID)
	if err != nil {
		return out, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Code, &m.HasCode, &m.Timestamp, &m.Time, &m.NodeID); err != nil {
			return out, err
		}
		out.Messages = append(out.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	return out, tx.Commit()
}

func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages`)
	return err
}

func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error { return s.db.Close() }
