// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RunRecord summarizes one run for the history table.
type RunRecord struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Workflow    string    `gorm:"size:255;index" json:"workflow"`
	Status      string    `gorm:"size:16;index" json:"status"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  int64     `json:"duration_ms"`
	Nodes       int       `json:"nodes"`
	Warnings    int       `json:"warnings"`
	Errors      int       `json:"errors"`
	TotalTokens int       `json:"total_tokens"`
	CostUSD     float64   `json:"cost_usd"`
	TracePath   string    `gorm:"size:512" json:"trace_path,omitempty"`
	Error       string    `gorm:"size:2048" json:"error,omitempty"`
}

// TableName implements gorm's naming override.
func (RunRecord) TableName() string { return "cascade_runs" }

// NodeRecord is one node outcome within a run.
type NodeRecord struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID      string `gorm:"size:36;index;not null" json:"run_id"`
	NodeID     string `gorm:"size:255;not null" json:"node_id"`
	Type       string `gorm:"size:255" json:"type,omitempty"`
	Attempt    int    `json:"attempt"`
	Skipped    bool   `json:"skipped"`
	Success    bool   `json:"success"`
	Action     string `gorm:"size:64" json:"action,omitempty"`
	Category   string `gorm:"size:32" json:"category,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Tokens     int    `json:"tokens"`
}

// TableName implements gorm's naming override.
func (NodeRecord) TableName() string { return "cascade_run_nodes" }

// HistoryConfig selects the history database. The sqlite driver is pure
// Go and the default; postgres and mysql serve shared deployments.
type HistoryConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// History persists run summaries.
type History struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenHistory connects per the config and migrates the schema.
func OpenHistory(cfg HistoryConfig, logger *zap.Logger) (*History, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "cascade.db"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported history driver %q (supported: sqlite, postgres, mysql)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting history database: %w", err)
	}
	if err := db.AutoMigrate(&RunRecord{}, &NodeRecord{}); err != nil {
		return nil, fmt.Errorf("migrating history schema: %w", err)
	}

	h, err := NewHistory(db, logger)
	if err != nil {
		return nil, err
	}
	h.logger.Info("run history ready", zap.String("driver", dialectorName(cfg.Driver)))
	return h, nil
}

// NewHistory wraps an existing connection without migrating, which keeps
// it usable against mock connections in tests.
func NewHistory(db *gorm.DB, logger *zap.Logger) (*History, error) {
	if db == nil {
		return nil, fmt.Errorf("history db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{db: db, logger: logger.With(zap.String("component", "history"))}, nil
}

func dialectorName(driver string) string {
	if driver == "" {
		return "sqlite"
	}
	return driver
}

// SaveRun stores the run summary and its node outcomes in one
// transaction.
func (h *History) SaveRun(ctx context.Context, a *Artifact) error {
	run := runRecordFrom(a)
	nodes := nodeRecordsFrom(a)

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(nodes) == 0 {
			return nil
		}
		return tx.Create(&nodes).Error
	})
	if err != nil {
		return fmt.Errorf("saving run %s: %w", a.RunID, err)
	}
	h.logger.Debug("run saved",
		zap.String("run_id", a.RunID),
		zap.String("status", string(a.FinalStatus)),
		zap.Int("nodes", len(nodes)))
	return nil
}

// Run loads one run and its node outcomes.
func (h *History) Run(ctx context.Context, id string) (RunRecord, []NodeRecord, error) {
	var run RunRecord
	if err := h.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return RunRecord{}, nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	var nodes []NodeRecord
	if err := h.db.WithContext(ctx).Where("run_id = ?", id).Order("id").Find(&nodes).Error; err != nil {
		return RunRecord{}, nil, fmt.Errorf("loading run %s nodes: %w", id, err)
	}
	return run, nodes, nil
}

// Recent lists the latest runs, optionally filtered by workflow name.
func (h *History) Recent(ctx context.Context, workflow string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := h.db.WithContext(ctx).Order("started_at desc").Limit(limit)
	if workflow != "" {
		q = q.Where("workflow = ?", workflow)
	}
	var runs []RunRecord
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Close releases the underlying connection.
func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runRecordFrom(a *Artifact) RunRecord {
	rec := RunRecord{
		ID:          a.RunID,
		Workflow:    a.Workflow,
		Status:      string(a.FinalStatus),
		StartedAt:   a.StartedAt,
		FinishedAt:  a.FinishedAt,
		DurationMS:  a.Summary.DurationMS,
		Nodes:       len(a.Nodes),
		Warnings:    a.Summary.Warnings,
		Errors:      a.Summary.Errors,
		TotalTokens: a.Summary.Usage.TotalTokens,
		CostUSD:     a.Summary.Usage.CostUSD,
	}
	if len(a.Errors) > 0 {
		rec.Error = a.Errors[len(a.Errors)-1].Error()
	}
	return rec
}

func nodeRecordsFrom(a *Artifact) []NodeRecord {
	nodes := make([]NodeRecord, 0, len(a.Nodes))
	for _, ev := range a.Nodes {
		n := NodeRecord{
			RunID:      a.RunID,
			NodeID:     ev.NodeID,
			Type:       ev.Type,
			Attempt:    ev.Attempt,
			Skipped:    ev.Skipped,
			Success:    ev.Success,
			Action:     ev.Action,
			DurationMS: ev.DurationMS,
		}
		if ev.Error != nil {
			n.Category = string(ev.Error.Category)
		}
		for _, c := range ev.LLMCalls {
			n.Tokens += c.TotalTokens
		}
		nodes = append(nodes, n)
	}
	return nodes
}
