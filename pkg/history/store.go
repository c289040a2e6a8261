package history

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/teslashibe/go-plantbot/internal/log"
	"github.com/teslashibe/go-plantbot/pkg/statemachine"
)

// Config controls write batching.
type Config struct {
	Path          string        // SQLite file; ":memory:" for tests
	BufferSize    int           // events queued before new ones are dropped
	FlushSize     int           // batch size that triggers an immediate write
	FlushInterval time.Duration // upper bound on write latency
}

// DefaultConfig returns the settings used on the robot.
func DefaultConfig() Config {
	return Config{
		Path:          "plantbot.db",
		BufferSize:    256,
		FlushSize:     32,
		FlushInterval: 2 * time.Second,
	}
}

// Store records controller events. Observer callbacks only enqueue; a
// background goroutine writes batches so the control loop never waits on
// the disk.
type Store struct {
	db     *gorm.DB
	cfg    Config
	logger *slog.Logger

	events  chan any
	flushCh chan chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	dropped atomic.Uint64
}

var _ statemachine.Observer = (*Store)(nil)

// Open opens (or creates) the database and starts the writer.
func Open(cfg Config) (*Store, error) {
	if cfg.BufferSize <= 0 || cfg.FlushSize <= 0 || cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("history: buffer, flush size and interval must be positive")
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", cfg.Path, err)
	}
	if err := db.AutoMigrate(&WateringRecord{}, &TransitionRecord{}); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}

	s := &Store{
		db:      db,
		cfg:     cfg,
		logger:  log.Component("history"),
		events:  make(chan any, cfg.BufferSize),
		flushCh: make(chan chan struct{}),
		stopCh:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writer()

	s.logger.Info("history opened", "path", cfg.Path)
	return s, nil
}

// OnStateChange queues a transition.
func (s *Store) OnStateChange(t statemachine.Transition) {
	s.enqueue(NewTransitionRecord(t))
}

// OnWatering queues a watering.
func (s *Store) OnWatering(e statemachine.WateringEvent) {
	s.enqueue(NewWateringRecord(e))
}

func (s *Store) enqueue(rec any) {
	select {
	case s.events <- rec:
	default:
		if s.dropped.Add(1) == 1 {
			s.logger.Warn("history buffer full, dropping events")
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Store) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Store) writer() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	var waterings []WateringRecord
	var transitions []TransitionRecord

	add := func(rec any) {
		switch r := rec.(type) {
		case WateringRecord:
			waterings = append(waterings, r)
		case TransitionRecord:
			transitions = append(transitions, r)
		}
	}
	drain := func() {
		for {
			select {
			case rec := <-s.events:
				add(rec)
			default:
				return
			}
		}
	}
	write := func() {
		if len(transitions) > 0 {
			if err := s.db.CreateInBatches(transitions, 100).Error; err != nil {
				s.logger.Error("write transitions failed", "error", err, "count", len(transitions))
			}
			transitions = transitions[:0]
		}
		if len(waterings) > 0 {
			if err := s.db.CreateInBatches(waterings, 100).Error; err != nil {
				s.logger.Error("write waterings failed", "error", err, "count", len(waterings))
			}
			waterings = waterings[:0]
		}
	}

	for {
		select {
		case rec := <-s.events:
			add(rec)
			if len(waterings)+len(transitions) >= s.cfg.FlushSize {
				write()
			}
		case <-ticker.C:
			write()
		case done := <-s.flushCh:
			drain()
			write()
			close(done)
		case <-s.stopCh:
			drain()
			write()
			return
		}
	}
}

// Flush writes everything queued so far.
func (s *Store) Flush() {
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
		<-done
	case <-s.stopCh:
	}
}

// Close flushes pending events and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stopCh)
		s.wg.Wait()

		sqlDB, dbErr := s.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}

// RecentWaterings returns the newest waterings first.
func (s *Store) RecentWaterings(limit int) ([]WateringRecord, error) {
	var out []WateringRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// RecentTransitions returns the newest transitions first.
func (s *Store) RecentTransitions(limit int) ([]TransitionRecord, error) {
	var out []TransitionRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// RunWaterings returns one run's waterings in order.
func (s *Store) RunWaterings(runID string) ([]WateringRecord, error) {
	var out []WateringRecord
	err := s.db.Where("run_id = ?", runID).Order("created_at ASC").Find(&out).Error
	return out, err
}

// PlantSummary aggregates waterings per plant index.
type PlantSummary struct {
	PlantIndex   int     `json:"plant_index"`
	Waterings    int64   `json:"waterings"`
	TotalSeconds float64 `json:"total_seconds"`
	AvgHumidity  float64 `json:"avg_humidity"`
}

// Summary aggregates all recorded waterings per plant index.
func (s *Store) Summary() ([]PlantSummary, error) {
	var out []PlantSummary
	err := s.db.Model(&WateringRecord{}).
		Select("plant_index, COUNT(*) AS waterings, SUM(applied_seconds) AS total_seconds, AVG(humidity_percent) AS avg_humidity").
		Group("plant_index").
		Order("plant_index").
		Scan(&out).Error
	return out, err
}
