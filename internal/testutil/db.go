// Package testutil opens throwaway databases and seeds fixtures for package tests.
package testutil

import (
	"context"
	"testing"

	"tenant-service/internal/model"
	"tenant-service/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database private to t.
// A single connection serializes transactions the way row locks do on PostgreSQL.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), database.NewGormConfig(logger.Silent))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.MigrateModels(db, model.All()...))
	return db
}

// System is the actor used for fixtures
var System = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Company inserts an active company
func Company(t testing.TB, db *gorm.DB, name string) *model.Company {
	t.Helper()
	c := &model.Company{LegalName: name, TaxNo: uuid.NewString()[:20]}
	c.IsActive = true
	require.NoError(t, c.StampCreated(System))
	require.NoError(t, db.WithContext(context.Background()).Create(c).Error)
	return c
}

// Account inserts an account for a fresh user id
func Account(t testing.TB, db *gorm.DB) *model.Account {
	t.Helper()
	a := &model.Account{UserID: uuid.New()}
	a.IsActive = true
	require.NoError(t, a.StampCreated(System))
	require.NoError(t, db.Create(a).Error)
	return a
}

// Membership inserts a membership row directly, bypassing invariant checks
func Membership(t testing.TB, db *gorm.DB, account *model.Account, company *model.Company, role model.Role, selected bool) *model.Membership {
	t.Helper()
	m := &model.Membership{AccountID: account.ID, CompanyID: company.ID, Role: role, IsSelected: selected}
	m.IsActive = true
	require.NoError(t, m.StampCreated(System))
	require.NoError(t, db.Create(m).Error)
	return m
}
