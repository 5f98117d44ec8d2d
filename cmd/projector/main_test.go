package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/market-value-forecast/internal/charts"
	"github.com/stitts-dev/market-value-forecast/internal/forecast"
)

const panelCSV = `player_id,name,year,age,market_value_in_million_eur,value_last_year,age_last_year
1,Veteran,2020,30,7,6,29
1,Veteran,2021,31,8,7,30
1,Veteran,2022,32,10,8,31
2,Prospect,2021,18,1,0.5,17
2,Prospect,2022,19,3,1,18
3,Midfielder,2021,24,4,3.5,23
3,Midfielder,2022,25,5,4,24
1,Veteran,2023,33,9,10,32
2,Prospect,2023,20,5,3,19
3,Midfielder,2023,26,6,5,25
`

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "panel.csv"), []byte(panelCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "features.yaml"),
		[]byte("features: [value_last_year, age_last_year]\n"), 0o644))

	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATA_PATH", filepath.Join(dir, "panel.csv"))
	t.Setenv("FEATURES_PATH", filepath.Join(dir, "features.yaml"))
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "output"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunCmd_JSON(t *testing.T) {
	dir := setupEnv(t)

	out, err := execute(t, "run", "--json", "--years", "2")
	require.NoError(t, err)

	var result forecast.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2023, result.SplitYear)
	assert.Len(t, result.Projections, 6)
	assert.FileExists(t, filepath.Join(dir, "output", "header_output.csv"))
}

func TestRunCmd_Summary(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "run", "--years", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "3 projections")
	assert.Contains(t, out, "Veteran")
}

func TestRunCmd_NoTestSeason(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "run", "--split-year", "2030")
	assert.ErrorIs(t, err, forecast.ErrNoTestData)
}

func TestPlotCmd(t *testing.T) {
	dir := setupEnv(t)

	out, err := execute(t, "plot", "--year", "2024", "--top", "2", "--years", "2")
	require.NoError(t, err)

	lines := strings.Fields(out)
	require.NotEmpty(t, lines)
	for _, path := range lines {
		assert.FileExists(t, path)
		assert.True(t, strings.HasPrefix(path, filepath.Join(dir, "output", "charts")))
	}

	_, err = execute(t, "plot")
	assert.ErrorIs(t, err, charts.ErrNoSelection)
}

func TestCapCmd(t *testing.T) {
	dir := setupEnv(t)
	input := filepath.Join(dir, "predictions.csv")
	require.NoError(t, os.WriteFile(input, []byte(`player_id,year,age,predicted_value
x,2025,32,9
x,2023,30,10
y,2023,35,4
x,2024,31,9
`), 0o644))

	out, err := execute(t, "cap", input)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"player_id", "year", "age", "predicted_value", "original_value", "capped"},
		{"x", "2025", "32", "7.2", "9", "true"},
		{"x", "2023", "30", "10", "10", "false"},
		{"y", "2023", "35", "4", "4", "false"},
		{"x", "2024", "31", "9", "9", "false"},
	}, records)
}

func TestCapCmd_KeepsExtraColumns(t *testing.T) {
	dir := setupEnv(t)
	input := filepath.Join(dir, "detail_output.csv")
	require.NoError(t, os.WriteFile(input, []byte(`player_id,name,year,age,predicted_value,model_output_id
x,Old Keeper,2023,30,10,abc-run
x,Old Keeper,2024,33,20,abc-run
y,"Young, Winger",2023,21,3.5,abc-run
`), 0o644))

	out, err := execute(t, "cap", input)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"player_id", "name", "year", "age", "predicted_value", "model_output_id", "original_value", "capped"},
		{"x", "Old Keeper", "2023", "30", "10", "abc-run", "10", "false"},
		{"x", "Old Keeper", "2024", "33", "8", "abc-run", "20", "true"},
		{"y", "Young, Winger", "2023", "21", "3.5", "abc-run", "3.5", "false"},
	}, records)
}

func TestCapCmd_OverwritesExistingCapColumns(t *testing.T) {
	dir := setupEnv(t)
	input := filepath.Join(dir, "capped.csv")
	require.NoError(t, os.WriteFile(input, []byte(`player_id,year,age,predicted_value,original_value,capped
x,2023,30,10,10,false
x,2024,33,20,20,false
`), 0o644))

	out, err := execute(t, "cap", input)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"player_id", "year", "age", "predicted_value", "original_value", "capped"}, records[0])
	assert.Equal(t, []string{"x", "2024", "33", "8", "20", "true"}, records[2])
}

func TestCapCmd_WritesFileAndRejectsBadRows(t *testing.T) {
	dir := setupEnv(t)
	input := filepath.Join(dir, "predictions.csv")
	output := filepath.Join(dir, "capped.csv")
	require.NoError(t, os.WriteFile(input, []byte("player_id,year,age,predicted_value\nx,2023,30,10\n"), 0o644))

	_, err := execute(t, "cap", input, "-o", output)
	require.NoError(t, err)
	assert.FileExists(t, output)

	require.NoError(t, os.WriteFile(input, []byte("player_id,year,age,predicted_value\nx,2023,,10\n"), 0o644))
	_, err = execute(t, "cap", input)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(input, []byte("player_id,year,age,predicted_value\nx,2023.5,30,10\n"), 0o644))
	_, err = execute(t, "cap", input)
	assert.ErrorContains(t, err, "invalid year")

	require.NoError(t, os.WriteFile(input, []byte("player_id,year,predicted_value\nx,2023,10\n"), 0o644))
	_, err = execute(t, "cap", input)
	assert.ErrorContains(t, err, "no age column")
}
