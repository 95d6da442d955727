// Package testutil builds throwaway sqlite databases for package tests.
package testutil

import (
	"testing"
	"time"

	"zaikokanri-backend/internal/config"
	"zaikokanri-backend/internal/database"
	"zaikokanri-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const Secret = "test-secret-test-secret-test-secret!"

func Config() *config.Config {
	return &config.Config{
		AppEnv:          "test",
		DatabaseDriver:  config.DriverSQLite,
		DatabaseDSN:     "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		JWTSecret:       Secret,
		CatalogCacheTTL: time.Minute,
		CSVQuoting:      config.QuotingStandard,
	}
}

// NewDB opens a migrated in-memory database that lives until the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open(Config(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func Date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func Money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func SeedStore(t testing.TB, db *gorm.DB, name string) *models.Store {
	t.Helper()
	s := &models.Store{Name: name}
	require.NoError(t, db.Create(s).Error)
	return s
}

func SeedProduct(t testing.TB, db *gorm.DB, p models.Product) *models.Product {
	t.Helper()
	if p.UnitPerCase == 0 {
		p.UnitPerCase = 1
	}
	require.NoError(t, db.Create(&p).Error)
	return &p
}
