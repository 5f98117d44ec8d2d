package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/market-value-forecast/internal/models"
	"github.com/stitts-dev/market-value-forecast/internal/recorder"
	"github.com/stitts-dev/market-value-forecast/pkg/database"
)

func TestRun_UpStatusDown(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewConnection(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var out bytes.Buffer
	require.NoError(t, run(ctx, "status", db, &out))
	assert.Contains(t, out.String(), "header_output    false")

	require.NoError(t, run(ctx, "up", db, &out))
	header := models.RunHeader{
		ModelOutputID: "run-status",
		ModelRunDate:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ModelType:     "ridge_regression",
		SplitYear:     2023,
	}
	require.NoError(t, recorder.NewDBRecorder(db).Record(ctx, header, nil))

	out.Reset()
	require.NoError(t, run(ctx, "status", db, &out))
	assert.Contains(t, out.String(), "header_output    true")
	assert.Contains(t, out.String(), "detail_output    true")
	assert.Contains(t, out.String(), "run-status")
	assert.Contains(t, out.String(), "2026-03-01T12:00:00Z")

	require.NoError(t, run(ctx, "down", db, &out))
	assert.False(t, db.Migrator().HasTable(&models.RunHeader{}))

	assert.EqualError(t, run(ctx, "seed", db, &out), "unknown command: seed")
}
