package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

type widget struct {
	ID   uint
	Name string
}

func TestNewSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")

	db, err := New(&Config{Driver: "sqlite", FilePath: path, MaxOpenConns: 1})
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, AutoMigrate(db, &widget{}))
	require.NoError(t, db.Create(&widget{Name: "a"}).Error)

	var n int64
	require.NoError(t, db.Model(&widget{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(&Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestLogMode(t *testing.T) {
	assert.Equal(t, logger.Info, logMode("INFO"))
	assert.Equal(t, logger.Warn, logMode("warn"))
	assert.Equal(t, logger.Error, logMode("error"))
	assert.Equal(t, logger.Silent, logMode(""))
}
