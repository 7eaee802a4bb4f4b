// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/pkg/database"
)

// NewTestDB opens a migrated in-memory sqlite database private to the test.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.AllModels()...))

	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// SeedUser inserts a user row and returns its id.
func SeedUser(t *testing.T, db *gorm.DB, name string) string {
	t.Helper()

	model := &domain.UserModel{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        fmt.Sprintf("%s-%s@example.com", name, uuid.New().String()[:8]),
		PasswordHash: "x",
	}
	require.NoError(t, db.WithContext(context.Background()).Create(model).Error)
	return model.ID
}
