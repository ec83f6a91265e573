// internal/pkg/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Manager keeps authenticated sessions in Redis. The auth service that
// issues tokens writes sessions here; this service only reads and
// invalidates them.
type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// CreateSession stores a session keyed by identity and token JTI, with a
// TTL matching the token expiry.
func (m *Manager) CreateSession(ctx context.Context, session *SessionData) error {
	key := m.sessionKey(session.IdentityID, session.JTI)

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}

	return m.client.Set(ctx, key, data, ttl).Err()
}

func (m *Manager) GetSession(ctx context.Context, identityID int64, jti string) (*SessionData, error) {
	key := m.sessionKey(identityID, jti)

	data, err := m.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("session not found")
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	session.LastActivityAt = time.Now()
	go m.touch(context.Background(), identityID, jti)

	return &session, nil
}

// touch refreshes the last-activity timestamp without extending the TTL.
func (m *Manager) touch(ctx context.Context, identityID int64, jti string) {
	key := m.sessionKey(identityID, jti)

	data, err := m.client.Get(ctx, key).Bytes()
	if err != nil {
		return
	}

	var session SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return
	}
	session.LastActivityAt = time.Now()

	updated, err := json.Marshal(session)
	if err != nil {
		return
	}

	if ttl := time.Until(session.ExpiresAt); ttl > 0 {
		m.client.Set(ctx, key, updated, ttl)
	}
}

func (m *Manager) InvalidateSession(ctx context.Context, identityID int64, jti string) error {
	return m.client.Del(ctx, m.sessionKey(identityID, jti)).Err()
}

func (m *Manager) InvalidateAllUserSessions(ctx context.Context, identityID int64) error {
	pattern := fmt.Sprintf("session:%d:*", identityID)

	iter := m.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := m.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// IsTokenBlacklisted checks if a token was revoked before its expiry.
func (m *Manager) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := m.client.Exists(ctx, m.blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

func (m *Manager) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	return m.client.Set(ctx, m.blacklistKey(jti), "1", ttl).Err()
}

func (m *Manager) sessionKey(identityID int64, jti string) string {
	return fmt.Sprintf("session:%d:%s", identityID, jti)
}

func (m *Manager) blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}
