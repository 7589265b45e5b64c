package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dawask/rag-backend/internal/logger"
	"github.com/dawask/rag-backend/internal/utils"
)

const (
	RoleStudent = "user"
	RoleTeacher = "assistant"
)

// DialogTurn is one exchange half in a session's history.
type DialogTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RenderHistory flattens the last limit turns as "Student:"/"Teacher:" lines
// for prompt inclusion.
func RenderHistory(history []DialogTurn, limit int) string {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	for _, turn := range history {
		role := "Teacher"
		if turn.Role == RoleStudent {
			role = "Student"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// SessionStore keeps short per-session dialog memory. History is only ever
// read through a turn limit and expires with the session TTL.
type SessionStore interface {
	History(ctx context.Context, sessionID string) ([]DialogTurn, error)
	AppendExchange(ctx context.Context, sessionID, question, answer string) error
	Clear(ctx context.Context, sessionID string) error
}

type sessionStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewSessionStore(log *logger.Logger) (SessionStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "SessionStore")

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	ttlMinutes := utils.GetEnvAsInt("SESSION_TTL_MINUTES", 1440, slog)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &sessionStore{
		log: slog,
		rdb: rdb,
		ttl: time.Duration(ttlMinutes) * time.Minute,
	}, nil
}

func sessionKey(sessionID string) string {
	return "chat:history:" + sessionID
}

func (s *sessionStore) History(ctx context.Context, sessionID string) ([]DialogTurn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return []DialogTurn{}, nil
	}
	raw, err := s.rdb.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]DialogTurn, 0, len(raw))
	for _, item := range raw {
		var turn DialogTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			s.log.Warn("Dropping undecodable history entry", "session_id", sessionID)
			continue
		}
		out = append(out, turn)
	}
	return out, nil
}

func (s *sessionStore) AppendExchange(ctx context.Context, sessionID, question, answer string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	key := sessionKey(sessionID)

	encoded := make([]interface{}, 0, 2)
	for _, turn := range []DialogTurn{
		{Role: RoleStudent, Content: question},
		{Role: RoleTeacher, Content: answer},
	} {
		b, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("encode history turn: %w", err)
		}
		encoded = append(encoded, b)
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, encoded...)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append history: %w", err)
	}
	return nil
}

func (s *sessionStore) Clear(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis clear history: %w", err)
	}
	return nil
}
