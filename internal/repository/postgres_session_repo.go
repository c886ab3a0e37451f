package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yukke-bit/fitbit-data-connector/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// トークン情報はdataカラムに暗号化して保存する。
type PostgresSessionRepo struct {
	db    *sql.DB
	codec Codec
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB, codec Codec) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db, codec: codec}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := sealSession(r.codec, session)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, data, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, data, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &data, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if err := openSession(r.codec, data, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Update はセッションのデータを上書きする。
func (r *PostgresSessionRepo) Update(ctx context.Context, session *model.Session) error {
	data, err := sealSession(r.codec, session)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions SET data = $2, expires_at = $3 WHERE id = $1`,
		session.ID, data, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var (
	_ SessionRepository    = (*PostgresSessionRepo)(nil)
	_ ExpiredSessionPurger = (*PostgresSessionRepo)(nil)
)
