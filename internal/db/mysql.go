package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"connectfour/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

const eloK = 32

// OpenMySQL connects with the configured credentials and verifies the
// connection.
func OpenMySQL(ctx context.Context, cfg *config.ConfigStruct) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.MySQLUser,
		cfg.MySQLPassword,
		cfg.MySQLHost,
		cfg.MySQLPort,
		cfg.MySQLDatabase,
	)

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return conn, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id CHAR(36) PRIMARY KEY,
		username VARCHAR(64) NOT NULL UNIQUE,
		state ENUM('idle','queued','playing') NOT NULL DEFAULT 'idle',
		rating INT NOT NULL DEFAULT 1000
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id CHAR(36) PRIMARY KEY,
		player1_id CHAR(36) NULL,
		player2_id CHAR(36) NULL,
		state ENUM('waiting','playing','finished') NOT NULL DEFAULT 'waiting',
		board TEXT NOT NULL,
		current_player TINYINT NOT NULL DEFAULT 1,
		winner_id CHAR(36) NULL,
		outcome VARCHAR(16) NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NULL,
		FOREIGN KEY (player1_id) REFERENCES players(id),
		FOREIGN KEY (player2_id) REFERENCES players(id),
		FOREIGN KEY (winner_id) REFERENCES players(id)
	)`,
}

// MySQLSink mirrors players and matches into MySQL and keeps Elo ratings
// for human-vs-human results.
type MySQLSink struct {
	db *sql.DB
}

func NewMySQLSink(db *sql.DB) *MySQLSink {
	return &MySQLSink{db: db}
}

func (s *MySQLSink) Name() string { return "mysql" }

// EnsureSchema creates the tables when they do not exist yet.
func (s *MySQLSink) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql schema: %w", err)
		}
	}
	return nil
}

func (s *MySQLSink) Write(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case PlayerEvent:
		return s.upsertPlayer(ctx, e)
	case MatchEvent:
		switch e.Phase {
		case MatchStarted:
			return s.insertMatch(ctx, e)
		case MatchMoved:
			return s.updateBoard(ctx, e)
		case MatchEnded:
			return s.finishMatch(ctx, e)
		}
	}
	return nil
}

func (s *MySQLSink) upsertPlayer(ctx context.Context, e PlayerEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, username, state) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE state = VALUES(state)`,
		PlayerID(e.Username), e.Username, string(e.State),
	)
	if err != nil {
		return fmt.Errorf("upsert player %s: %w", e.Username, err)
	}
	return nil
}

func nullablePlayer(name string) sql.NullString {
	if name == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: PlayerID(name), Valid: true}
}

func encodeBoard(board [][]int) (string, error) {
	raw, err := json.Marshal(board)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *MySQLSink) insertMatch(ctx context.Context, e MatchEvent) error {
	board, err := encodeBoard(e.Board)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matches (id, player1_id, player2_id, state, board, current_player, started_at)
		VALUES (?, ?, ?, 'playing', ?, ?, ?)`,
		e.MatchID, nullablePlayer(e.Player1), nullablePlayer(e.Player2), board, e.CurrentPlayer, e.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", e.MatchID, err)
	}
	return nil
}

func (s *MySQLSink) updateBoard(ctx context.Context, e MatchEvent) error {
	board, err := encodeBoard(e.Board)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE matches SET board = ?, current_player = ? WHERE id = ?`,
		board, e.CurrentPlayer, e.MatchID,
	)
	if err != nil {
		return fmt.Errorf("update match %s: %w", e.MatchID, err)
	}
	return nil
}

func (s *MySQLSink) finishMatch(ctx context.Context, e MatchEvent) error {
	board, err := encodeBoard(e.Board)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("finish match %s: %w", e.MatchID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE matches SET state = 'finished', board = ?, current_player = ?, winner_id = ?, outcome = ?, ended_at = ?
		WHERE id = ?`,
		board, e.CurrentPlayer, nullablePlayer(e.playerName(e.Winner)), string(e.Outcome), e.At, e.MatchID,
	)
	if err != nil {
		return fmt.Errorf("finish match %s: %w", e.MatchID, err)
	}

	if e.Player1 != "" && e.Player2 != "" && e.Outcome != OutcomeAbandoned {
		if err := rate(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func rate(ctx context.Context, tx *sql.Tx, e MatchEvent) error {
	id1, id2 := PlayerID(e.Player1), PlayerID(e.Player2)

	var r1, r2 int
	if err := tx.QueryRowContext(ctx, `SELECT rating FROM players WHERE id = ? FOR UPDATE`, id1).Scan(&r1); err != nil {
		return fmt.Errorf("rating for %s: %w", e.Player1, err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT rating FROM players WHERE id = ? FOR UPDATE`, id2).Scan(&r2); err != nil {
		return fmt.Errorf("rating for %s: %w", e.Player2, err)
	}

	score := 0.5
	switch e.Winner {
	case 1:
		score = 1
	case 2:
		score = 0
	}
	n1, n2 := Elo(r1, r2, score)

	if _, err := tx.ExecContext(ctx, `UPDATE players SET rating = ? WHERE id = ?`, n1, id1); err != nil {
		return fmt.Errorf("update rating for %s: %w", e.Player1, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE players SET rating = ? WHERE id = ?`, n2, id2); err != nil {
		return fmt.Errorf("update rating for %s: %w", e.Player2, err)
	}
	return nil
}

// Elo returns the new ratings after a game where scoreA is 1 for a win by
// A, 0.5 for a draw and 0 for a loss.
func Elo(ratingA, ratingB int, scoreA float64) (int, int) {
	expectedA := 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
	delta := eloK * (scoreA - expectedA)
	return int(math.Round(float64(ratingA) + delta)), int(math.Round(float64(ratingB) - delta))
}
