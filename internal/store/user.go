package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.ChatUserID, &u.ForgeLogin, &u.TokenHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByTokenHash looks up the user owning an already-hashed bearer
// token, used to authorise pipeline creation and job restarts from the web
// and chat surfaces.
func (s *Store) GetUserByTokenHash(ctx context.Context, tokenHash string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT id, chat_user_id, forge_login, token_hash, created_at
		FROM users WHERE token_hash = $1`, tokenHash))
}

// GetUserByChatUserID looks up the user linked to a chat-surface identity.
func (s *Store) GetUserByChatUserID(ctx context.Context, chatUserID string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT id, chat_user_id, forge_login, token_hash, created_at
		FROM users WHERE chat_user_id = $1`, chatUserID))
}
