package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PipelineRun is one full or partial generation run.
type PipelineRun struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Step         string     `json:"step"`
	Success      bool       `json:"success"`
	Error        string     `json:"error,omitempty"`
	RoomModel    string     `json:"room_model,omitempty"`
	AudioModel   string     `json:"audio_model,omitempty"`
	Profession   string     `json:"profession,omitempty"`
	SoundsTotal  int        `json:"sounds_total"`
	SoundsFailed int        `json:"sounds_failed"`

	Downloads []SoundDownload `gorm:"foreignKey:RunID" json:"downloads,omitempty"`
}

// SoundDownload is one sound resolved during a run.
type SoundDownload struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	RunID     uint      `gorm:"index" json:"run_id"`
	SoundID   int       `json:"sound_id"`
	Title     string    `json:"title"`
	Object    string    `json:"object"`
	Type      string    `json:"type"`
	Filename  string    `json:"filename"`
	Duration  float64   `json:"duration"`
	Loudness  float64   `json:"loudness"`
	Volume    float64   `json:"volume"`
}

// Store keeps durable run history in a local sqlite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.AutoMigrate(&PipelineRun{}, &SoundDownload{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// BeginRun records the start of a pipeline run.
func (s *Store) BeginRun(roomModel, audioModel string) (*PipelineRun, error) {
	run := &PipelineRun{
		StartedAt:  time.Now(),
		Step:       "Starting pipeline",
		RoomModel:  roomModel,
		AudioModel: audioModel,
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// UpdateStep records progress through the run.
func (s *Store) UpdateStep(runID uint, step string) error {
	return s.db.Model(&PipelineRun{}).Where("id = ?", runID).Update("step", step).Error
}

// FinishRun closes a run out, successful or not.
func (s *Store) FinishRun(runID uint, success bool, runErr error, soundsTotal, soundsFailed int) error {
	now := time.Now()
	updates := map[string]interface{}{
		"finished_at":   &now,
		"success":       success,
		"sounds_total":  soundsTotal,
		"sounds_failed": soundsFailed,
	}
	if runErr != nil {
		updates["error"] = runErr.Error()
	}
	return s.db.Model(&PipelineRun{}).Where("id = ?", runID).Updates(updates).Error
}

// SetProfession tags the run with the generated room's profession once known.
func (s *Store) SetProfession(runID uint, profession string) error {
	return s.db.Model(&PipelineRun{}).Where("id = ?", runID).Update("profession", profession).Error
}

// RecordDownload persists one resolved sound.
func (s *Store) RecordDownload(d *SoundDownload) error {
	return s.db.Create(d).Error
}

// LatestRun returns the most recently started run with its downloads, or
// nil when no run has happened yet.
func (s *Store) LatestRun() (*PipelineRun, error) {
	var run PipelineRun
	err := s.db.Preload("Downloads").Order("id DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []PipelineRun
	if err := s.db.Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
