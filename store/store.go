// Package store 用户资料的 SQLite 持久化（头像、用户名），供呈现层按 uid 查询
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"villagesync/store/migrations"
)

// ErrNotFound 资料不存在
var ErrNotFound = errors.New("store: profile not found")

// Profile 用户资料
type Profile struct {
	UID       string    `json:"uid"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store SQLite 资料存储
type Store struct {
	db *sql.DB
}

// Open 打开数据库文件并执行内嵌迁移
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetProfile 按 uid 查询
func (s *Store) GetProfile(ctx context.Context, uid string) (Profile, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return Profile{}, ErrNotFound
	}
	var (
		p         Profile
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, username, avatar, updated_at FROM profiles WHERE uid = ?`, uid,
	).Scan(&p.UID, &p.Username, &p.Avatar, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile %q: %w", uid, err)
	}
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return p, nil
}

// PutProfile 插入或更新资料
func (s *Store) PutProfile(ctx context.Context, p Profile) error {
	uid := strings.TrimSpace(p.UID)
	if uid == "" {
		return errors.New("store: uid is required")
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (uid, username, avatar, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(uid) DO UPDATE SET
		   username = excluded.username,
		   avatar = excluded.avatar,
		   updated_at = excluded.updated_at`,
		uid, strings.TrimSpace(p.Username), strings.TrimSpace(p.Avatar), updatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put profile %q: %w", uid, err)
	}
	return nil
}
