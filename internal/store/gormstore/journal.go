// Package gormstore 保存下载任务日志（journal），供 HTTP 查询与排障。
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"candlesync/internal/download"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound 表示 journal 中没有该任务。
var ErrNotFound = errors.New("download record not found")

// DownloadRecord 是一次下载任务的持久化记录。
type DownloadRecord struct {
	ID        string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	Market    string         `gorm:"column:market;index" json:"market"`
	Timeframe string         `gorm:"column:timeframe" json:"timeframe"`
	Since     int64          `gorm:"column:since" json:"since"`
	Limit     int            `gorm:"column:limit_n" json:"limit"`
	Status    string         `gorm:"column:status;index" json:"status"`
	CacheHit  bool           `gorm:"column:cache_hit" json:"cache_hit"`
	Windows   int            `gorm:"column:windows" json:"windows"`
	Candles   int            `gorm:"column:candles" json:"candles"`
	ElapsedMs int64          `gorm:"column:elapsed_ms" json:"elapsed_ms"`
	Error     string         `gorm:"column:error" json:"error,omitempty"`
	Params    datatypes.JSON `gorm:"column:params" json:"params"`
	CreatedAt int64          `gorm:"column:created_at;autoCreateTime:milli;index" json:"created_at"`
	UpdatedAt int64          `gorm:"column:updated_at;autoUpdateTime:milli" json:"updated_at"`
}

func (DownloadRecord) TableName() string { return "download_jobs" }

// Journal 使用 Gorm + SQLite 实现 download.Recorder。
type Journal struct {
	db *gorm.DB
}

var _ download.Recorder = (*Journal)(nil)

func NewJournal(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&DownloadRecord{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (j *Journal) Begin(ctx context.Context, id string, req download.Request) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid job id %q: %w", id, err)
	}
	params, err := json.Marshal(req)
	if err != nil {
		return err
	}
	rec := DownloadRecord{
		ID:        id,
		Market:    req.Market,
		Timeframe: req.Timeframe,
		Since:     req.Since,
		Limit:     req.Limit,
		Status:    download.StatusRunning,
		Params:    datatypes.JSON(params),
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

func (j *Journal) Complete(ctx context.Context, id string, out download.Outcome) error {
	updates := map[string]any{
		"status":     out.Status,
		"cache_hit":  out.CacheHit,
		"windows":    out.Windows,
		"candles":    out.Candles,
		"elapsed_ms": out.Elapsed.Milliseconds(),
		"error":      "",
		"updated_at": time.Now().UnixMilli(),
	}
	if out.Err != nil {
		updates["error"] = out.Err.Error()
	}
	res := j.db.WithContext(ctx).Model(&DownloadRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (j *Journal) Get(ctx context.Context, id string) (DownloadRecord, error) {
	var rec DownloadRecord
	err := j.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DownloadRecord{}, ErrNotFound
	}
	return rec, err
}

// List 按创建时间倒序返回最近的任务。
func (j *Journal) List(ctx context.Context, limit int) ([]DownloadRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	var out []DownloadRecord
	err := j.db.WithContext(ctx).Order("created_at DESC").Order("id").Limit(limit).Find(&out).Error
	return out, err
}
