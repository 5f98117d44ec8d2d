package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/stitts-dev/market-value-forecast/internal/api/handlers"
	"github.com/stitts-dev/market-value-forecast/internal/cache"
	"github.com/stitts-dev/market-value-forecast/internal/features"
	"github.com/stitts-dev/market-value-forecast/internal/forecast"
	"github.com/stitts-dev/market-value-forecast/internal/growthcap"
	"github.com/stitts-dev/market-value-forecast/internal/models"
	"github.com/stitts-dev/market-value-forecast/internal/panel"
	"github.com/stitts-dev/market-value-forecast/internal/predictor"
	"github.com/stitts-dev/market-value-forecast/pkg/logger"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type memoryStore map[string]models.RunHeader

func (s memoryStore) GetRun(_ context.Context, runID string) (*models.RunHeader, error) {
	h, ok := s[runID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &h, nil
}

func samplePanel(context.Context) (*panel.Panel, error) {
	var rows []panel.Observation
	for i := 0; i < 8; i++ {
		vlast := float64(2 + i)
		alast := float64(21 + (i*5)%7)
		rows = append(rows, panel.Observation{
			PlayerID: fmt.Sprintf("p%d", i),
			Year:     2020 + i%3,
			Age:      panel.Float(alast + 1),
			Value:    panel.Float(0.5 + 0.9*vlast),
			Features: map[string]float64{"value_last_year": vlast, "age_last_year": alast},
		})
	}
	rows = append(rows,
		panel.Observation{PlayerID: "vet", Name: "Veteran", Year: 2023, Age: panel.Float(33), Value: panel.Float(9),
			Features: map[string]float64{"value_last_year": 10, "age_last_year": 32}},
		panel.Observation{PlayerID: "kid", Name: "Prospect", Year: 2023, Age: panel.Float(19), Value: panel.Float(3),
			Features: map[string]float64{"value_last_year": 2, "age_last_year": 18}},
	)
	return panel.New([]string{"value_last_year", "age_last_year"}, rows), nil
}

type testServer struct {
	router *gin.Engine
	redis  *miniredis.Miniredis
	store  memoryStore
}

func newTestServer(t *testing.T, checks map[string]handlers.Check) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	resultCache := cache.NewProjectionCache(client, time.Hour)

	log := logger.Discard()
	engine := growthcap.NewDefault()
	forecaster := forecast.New(
		func() predictor.Trainer { return predictor.NewRidgeRegression(0.001) },
		engine, nil, log,
	)
	defaults := forecast.Options{
		SplitYear: 2023,
		Years:     2,
		Features: features.Config{
			Target:   panel.DefaultTargetColumn,
			Features: []string{"value_last_year", "age_last_year"},
			Groups:   features.DefaultGroups,
		},
	}
	store := memoryStore{}

	router := NewRouter(Handlers{
		Projection: handlers.NewProjectionHandler(forecaster, samplePanel, defaults, store, resultCache, log),
		GrowthCap:  handlers.NewGrowthCapHandler(engine),
		Health:     handlers.NewHealthHandler(checks, nil),
	}, log)

	return &testServer{router: router, redis: mr, store: store}
}

func (s *testServer) do(method, path, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestHealthAndReady(t *testing.T) {
	failing := false
	s := newTestServer(t, map[string]handlers.Check{
		"database": func(context.Context) error {
			if failing {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	w, _ := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, _ = s.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	failing = true
	w, _ = s.do(http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestCreateAndGetProjection(t *testing.T) {
	s := newTestServer(t, nil)

	w, env := s.do(http.MethodPost, "/api/v1/projections", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, env.Success)

	var created forecast.Result
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Len(t, created.Projections, 4)
	assert.Equal(t, 2023, created.SplitYear)
	assert.Equal(t, []string{"value_last_year", "age_last_year"}, created.Features)
	assert.True(t, s.redis.Exists(cache.Key(created.RunID)))

	w, env = s.do(http.MethodGet, "/api/v1/projections/"+created.RunID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var fetched forecast.Result
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	assert.Equal(t, created.Projections, fetched.Projections)
}

func TestCreateProjection_Overrides(t *testing.T) {
	s := newTestServer(t, nil)

	w, env := s.do(http.MethodPost, "/api/v1/projections", `{"years": 1, "features": ["value_last_year"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created forecast.Result
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Len(t, created.Projections, 2)
	assert.Equal(t, []string{"value_last_year"}, created.Features)
}

func TestCreateProjection_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"no training data", `{"split_year": 2019}`, http.StatusUnprocessableEntity, "NO_DATA"},
		{"unknown feature", `{"features": ["xg"]}`, http.StatusUnprocessableEntity, "PROJECTION_ERROR"},
		{"too many years", `{"years": 50}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad group", `{"groups": [{"placeholder": "pos"}]}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed", `{"years":`, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(http.MethodPost, "/api/v1/projections", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestGetProjection_FromStore(t *testing.T) {
	s := newTestServer(t, nil)
	s.store["stored-run"] = models.RunHeader{
		ModelOutputID: "stored-run",
		FeaturesUsed:  "value_last_year",
		SplitYear:     2022,
		Details: []models.RunDetail{
			{ModelOutputID: "stored-run", PlayerID: "vet", Year: 2022, Age: 32, PredictedValue: 8},
		},
	}

	w, env := s.do(http.MethodGet, "/api/v1/projections/stored-run", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got forecast.Result
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 2022, got.SplitYear)
	require.Len(t, got.Projections, 1)
	assert.True(t, s.redis.Exists(cache.Key("stored-run")), "store hits warm the cache")

	w, env = s.do(http.MethodGet, "/api/v1/projections/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestApplyGrowthCap(t *testing.T) {
	s := newTestServer(t, nil)

	body := `{"rows": [
		{"player_id": "x", "year": 2025, "age": 32, "predicted_value": 9},
		{"player_id": "x", "year": 2023, "age": 30, "predicted_value": 10},
		{"player_id": "x", "year": 2024, "age": 31, "predicted_value": 9}
	]}`
	w, env := s.do(http.MethodPost, "/api/v1/growth-cap", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out struct {
		Capped int                `json:"capped"`
		Rows   []growthcap.Result `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out.Rows, 3)
	assert.Equal(t, 1, out.Capped)
	assert.Equal(t, 2025, out.Rows[0].Year, "rows come back in request order")
	assert.InDelta(t, 7.2, out.Rows[0].Value, 1e-9)
	assert.True(t, out.Rows[0].Capped)
	assert.Equal(t, 10.0, out.Rows[1].Value)
}

func TestApplyGrowthCap_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	w, env := s.do(http.MethodPost, "/api/v1/growth-cap", `{"rows": [{"player_id": "x", "year": 2023, "predicted_value": 4}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Message, "Invalid prediction row")

	w, _ = s.do(http.MethodPost, "/api/v1/growth-cap", `{"scale_limit": 1.5, "rows": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.do(http.MethodPost, "/api/v1/projections", "")

	w, _ := s.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "forecast_runs_total"))
}
