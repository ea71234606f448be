package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an initialized pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// SaveMessage inserts the message and reads back the database commit timestamp.
func (s *PostgresStore) SaveMessage(ctx context.Context, m *ChatMessage) error {
	var productID any
	if m.ProductID != "" {
		productID = m.ProductID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, content, author_user_id, room_id, is_private, product_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		m.ID, m.Content, m.AuthorID, m.RoomID, m.IsPrivate, productID,
	)

	if err := row.Scan(&m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GeneralHistory returns the most recent limit general-room messages in
// ascending creation order. The inner query selects the newest rows, the
// outer one restores chronological order.
func (s *PostgresStore) GeneralHistory(ctx context.Context, limit int) ([]ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, content, author_user_id, nickname, room_id, is_private, product_id, created_at
		FROM (
			SELECT m.id, m.content, m.author_user_id, u.nickname, m.room_id,
			       m.is_private, m.product_id, m.created_at
			FROM messages m
			JOIN users u ON u.id = m.author_user_id
			WHERE m.room_id = 'general'
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $1
		) latest
		ORDER BY created_at ASC, id ASC`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query general history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// PrivateHistory returns every private message of the given room in ascending
// creation order.
func (s *PostgresStore) PrivateHistory(ctx context.Context, roomID string) ([]ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.content, m.author_user_id, u.nickname, m.room_id,
		       m.is_private, m.product_id, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.author_user_id
		WHERE m.room_id = $1 AND m.is_private
		ORDER BY m.created_at ASC, m.id ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query private history: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]ChatMessage, error) {
	messages := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		var productID *string
		if err := rows.Scan(&m.ID, &m.Content, &m.AuthorID, &m.AuthorNick,
			&m.RoomID, &m.IsPrivate, &productID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if productID != nil {
			m.ProductID = *productID
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UserIDByNickname resolves a nickname to a userId.
func (s *PostgresStore) UserIDByNickname(ctx context.Context, nickname string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE nickname = $1`, nickname,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve nickname: %w", err)
	}
	return id, nil
}

// NicknameByUserID resolves a userId to its nickname.
func (s *PostgresStore) NicknameByUserID(ctx context.Context, userID string) (string, error) {
	var nickname string
	err := s.pool.QueryRow(ctx,
		`SELECT nickname FROM users WHERE id = $1`, userID,
	).Scan(&nickname)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve user id: %w", err)
	}
	return nickname, nil
}

// OwnsProduct reports whether the product exists and belongs to userID.
func (s *PostgresStore) OwnsProduct(ctx context.Context, userID, productID string) (bool, error) {
	var owns bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND owner_id = $2)`,
		productID, userID,
	).Scan(&owns)
	if err != nil {
		return false, fmt.Errorf("check product ownership: %w", err)
	}
	return owns, nil
}

// Preferences loads the user's notification preferences; nil when unset.
func (s *PostgresStore) Preferences(ctx context.Context, userID string) (*NotificationPrefs, error) {
	var p NotificationPrefs
	err := s.pool.QueryRow(ctx, `
		SELECT receive_all, allowed_nicknames, allowed_keywords, enabled_types
		FROM notification_preferences
		WHERE user_id = $1`,
		userID,
	).Scan(&p.ReceiveAll, &p.AllowedNicknames, &p.AllowedKeywords, &p.EnabledTypes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query notification preferences: %w", err)
	}
	return &p, nil
}

// PushSubscriptions returns every push endpoint registered for the user.
func (s *PostgresStore) PushSubscriptions(ctx context.Context, userID string) ([]PushSubscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, endpoint, p256dh, auth
		FROM push_subscriptions
		WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query push subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []PushSubscription{}
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &sub.P256dh, &sub.Auth); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeletePushSubscription removes a subscription row by id.
func (s *PostgresStore) DeletePushSubscription(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}
