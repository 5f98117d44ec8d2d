package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stitts-dev/market-value-forecast/internal/forecast"
	"github.com/stitts-dev/market-value-forecast/internal/panel"
	"github.com/stitts-dev/market-value-forecast/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, data *panel.Panel, opts forecast.Options) (*forecast.Result, error) {
	args := m.Called(ctx, data, opts)
	result, _ := args.Get(0).(*forecast.Result)
	return result, args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Set(ctx context.Context, result *forecast.Result) error {
	return m.Called(ctx, result).Error(0)
}

func staticLoader(p *panel.Panel) Loader {
	return func(context.Context) (*panel.Panel, error) { return p, nil }
}

func TestRefresh_StoresResult(t *testing.T) {
	data := panel.New(nil, nil)
	opts := forecast.Options{SplitYear: 2023, Years: 2}
	result := &forecast.Result{RunID: "run-7"}

	runner := new(MockRunner)
	runner.On("Run", mock.Anything, data, opts).Return(result, nil)
	store := new(MockStore)
	store.On("Set", mock.Anything, result).Return(nil)

	svc := NewRefreshService(staticLoader(data), runner, store, opts, "@daily", logger.Discard())
	got, err := svc.Refresh(context.Background())

	require.NoError(t, err)
	assert.Same(t, result, got)
	runner.AssertExpectations(t)
	store.AssertExpectations(t)
	assert.Equal(t, "run-7", svc.Status()["last_run_id"])
}

func TestRefresh_StoreFailureIsNotFatal(t *testing.T) {
	result := &forecast.Result{RunID: "run-8"}
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(result, nil)
	store := new(MockStore)
	store.On("Set", mock.Anything, result).Return(errors.New("redis down"))

	svc := NewRefreshService(staticLoader(panel.New(nil, nil)), runner, store, forecast.Options{}, "@daily", logger.Discard())
	_, err := svc.Refresh(context.Background())
	assert.NoError(t, err)
}

func TestRefresh_StoresResultWhenRecordingFails(t *testing.T) {
	result := &forecast.Result{RunID: "run-9"}
	recordErr := errors.New("failed to record run: database is locked")
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(result, recordErr)
	store := new(MockStore)
	store.On("Set", mock.Anything, result).Return(nil).Once()

	svc := NewRefreshService(staticLoader(panel.New(nil, nil)), runner, store, forecast.Options{}, "@daily", logger.Discard())
	got, err := svc.Refresh(context.Background())

	assert.ErrorIs(t, err, recordErr)
	assert.Same(t, result, got)
	store.AssertExpectations(t)
	assert.Equal(t, "run-9", svc.Status()["last_run_id"])
}

func TestRefresh_Failures(t *testing.T) {
	loadErr := errors.New("file missing")
	svc := NewRefreshService(
		func(context.Context) (*panel.Panel, error) { return nil, loadErr },
		new(MockRunner), nil, forecast.Options{}, "@daily", logger.Discard(),
	)
	_, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, "failed to load panel: file missing", svc.Status()["last_error"])

	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil, forecast.ErrNoTestData)
	store := new(MockStore)
	svc = NewRefreshService(staticLoader(panel.New(nil, nil)), runner, store, forecast.Options{}, "@daily", logger.Discard())
	_, err = svc.Refresh(context.Background())
	assert.ErrorIs(t, err, forecast.ErrNoTestData)
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
}

func TestStartStop(t *testing.T) {
	svc := NewRefreshService(staticLoader(nil), new(MockRunner), nil, forecast.Options{}, "0 4 * * *", logger.Discard())

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start(), "second start is rejected")

	status := svc.Status()
	assert.Equal(t, true, status["is_running"])
	assert.Len(t, status["next_runs"], 1)

	svc.Stop()
	svc.Stop()
	assert.Equal(t, false, svc.Status()["is_running"])
}

func TestStart_InvalidSchedule(t *testing.T) {
	svc := NewRefreshService(staticLoader(nil), new(MockRunner), nil, forecast.Options{}, "every tuesday", logger.Discard())
	assert.Error(t, svc.Start())
}
