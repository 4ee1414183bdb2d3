package auth

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrUserNotFound はユーザーが存在しないことを表す。
var ErrUserNotFound = errors.New("ユーザーが見つかりません")

// User は認証サービスが管理するユーザー。
type User struct {
	ID             string
	Provider       string
	ProviderUserID string
	Email          string
	DisplayName    string
	CreatedAt      string
	LastLoginAt    string
}

// userStore はusersテーブルへのアクセスを提供する。
type userStore struct {
	db *sql.DB
}

// upsert はプロバイダとプロバイダ内IDでユーザーを作成し、既存なら最終ログイン日時を更新する。
func (s *userStore) upsert(ctx context.Context, u User) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, provider, provider_user_id, email, display_name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_user_id)
		DO UPDATE SET last_login_at = datetime('now')
		RETURNING id, provider, provider_user_id, email, display_name, created_at, last_login_at
	`, uuid.NewString(), u.Provider, u.ProviderUserID, u.Email, u.DisplayName)

	var out User
	if err := row.Scan(&out.ID, &out.Provider, &out.ProviderUserID, &out.Email, &out.DisplayName, &out.CreatedAt, &out.LastLoginAt); err != nil {
		return User{}, fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}
	return out, nil
}

// get はIDでユーザーを取得する。
func (s *userStore) get(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider, provider_user_id, email, display_name, created_at, last_login_at
		FROM users WHERE id = ?
	`, id)

	var out User
	err := row.Scan(&out.ID, &out.Provider, &out.ProviderUserID, &out.Email, &out.DisplayName, &out.CreatedAt, &out.LastLoginAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return out, nil
}
