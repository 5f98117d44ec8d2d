package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// RunHeader is one row per projection run.
type RunHeader struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	ModelOutputID    string    `gorm:"uniqueIndex;not null;size:36" json:"model_output_id"`
	ModelRunDate     time.Time `gorm:"not null" json:"model_run_date"`
	TimeTakenSeconds float64   `json:"time_taken_seconds"`
	FeaturesUsed     string    `gorm:"type:text" json:"features_used"`
	ModelType        string    `gorm:"size:64" json:"model_type"`
	SplitYear        int       `gorm:"not null" json:"split_year"`
	Version          string    `gorm:"size:32" json:"version"`
	// Ranked feature importances as a JSON array of {feature, score}; empty when the
	// model reports none. Not part of the CSV output.
	Importances datatypes.JSON `json:"importances,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`

	Details []RunDetail `gorm:"foreignKey:ModelOutputID;references:ModelOutputID" json:"details,omitempty"`
}

// TableName specifies the table name for GORM
func (RunHeader) TableName() string {
	return "header_output"
}

// Features splits FeaturesUsed back into a list.
func (h RunHeader) Features() []string {
	if h.FeaturesUsed == "" {
		return nil
	}
	return strings.Split(h.FeaturesUsed, ",")
}

// RunDetail is one projected player-year of a run.
type RunDetail struct {
	ID             uint     `gorm:"primaryKey" json:"-"`
	ModelOutputID  string   `gorm:"not null;size:36;index:idx_run_player" json:"model_output_id"`
	PlayerID       string   `gorm:"not null;size:64;index:idx_run_player" json:"player_id"`
	Name           string   `json:"name"`
	Year           int      `gorm:"not null" json:"year"`
	Age            float64  `json:"age"`
	PredictedValue float64  `gorm:"not null" json:"predicted_value"`
	ActualValue    *float64 `json:"actual_value,omitempty"` // Null for seasons not yet played
	Capped         bool     `gorm:"default:false" json:"capped"`
}

func (RunDetail) TableName() string {
	return "detail_output"
}

// AllModels lists every table, in migration order.
func AllModels() []interface{} {
	return []interface{}{&RunHeader{}, &RunDetail{}}
}
