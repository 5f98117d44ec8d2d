package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMigrateAndDrop(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db), "migrating twice is harmless")
	assert.True(t, db.Migrator().HasTable("header_output"))
	assert.True(t, db.Migrator().HasTable("detail_output"))
	assert.True(t, db.Migrator().HasIndex(&RunDetail{}, "idx_run_player"))

	require.NoError(t, Drop(db))
	assert.False(t, db.Migrator().HasTable("header_output"))
	assert.False(t, db.Migrator().HasTable("detail_output"))
}

func TestRunHeaderFeatures(t *testing.T) {
	assert.Nil(t, RunHeader{}.Features())
	assert.Equal(t, []string{"value_last_year", "pos_GK"}, RunHeader{FeaturesUsed: "value_last_year,pos_GK"}.Features())
}
