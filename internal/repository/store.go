// Package repository implements relational persistence on PostgreSQL,
// including the pgvector-backed memory store.
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("repository: not found")

// Store holds the DB pool and repositories.
type Store struct {
	db            *gorm.DB
	Characters    *CharacterRepo
	Conversations *ConversationRepo
	Memories      *MemoryRepo
}

// NewStore opens the PostgreSQL pool, enables pgvector, and migrates the
// schema.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(
		&characterModel{},
		&documentModel{},
		&conversationModel{},
		&messageModel{},
		&memoryModel{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{
		db:            db,
		Characters:    NewCharacterRepo(db),
		Conversations: NewConversationRepo(db),
		Memories:      NewMemoryRepo(db),
	}, nil
}

// DB exposes the underlying pool.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
