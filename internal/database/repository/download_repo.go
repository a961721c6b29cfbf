// Package repository 下载流水仓库
package repository

import (
	"time"

	"github.com/smysle/sakura-dlbot-go/internal/database"
	"github.com/smysle/sakura-dlbot-go/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DownloadRepository 下载流水仓库
type DownloadRepository struct {
	db *gorm.DB
}

// NewDownloadRepository 创建下载流水仓库
func NewDownloadRepository() *DownloadRepository {
	return &DownloadRepository{db: database.GetDB()}
}

// RecordTerminal 写入终态记录
//
// 以 request_id 幂等：重复写入同一请求的终态只生效一次。
func (r *DownloadRepository) RecordTerminal(d *models.Download) error {
	if d.CompletedAt == nil {
		now := time.Now()
		d.CompletedAt = &now
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoNothing: true,
	}).Create(d).Error
}

// GetByRequestID 根据请求 ID 获取记录
func (r *DownloadRepository) GetByRequestID(requestID string) (*models.Download, error) {
	var d models.Download
	err := r.db.Where("request_id = ?", requestID).First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// RecentByUser 用户最近的下载记录
func (r *DownloadRepository) RecentByUser(tg int64, limit int) ([]models.Download, error) {
	var downloads []models.Download
	err := r.db.Where("tg = ?", tg).
		Order("created_at DESC").
		Limit(limit).
		Find(&downloads).Error
	return downloads, err
}

// Stats 全局统计
type Stats struct {
	Total     int64 `json:"total"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Bytes     int64 `json:"bytes"`
}

// GlobalStats 汇总全部下载流水
func (r *DownloadRepository) GlobalStats() (*Stats, error) {
	var stats Stats

	if err := r.db.Model(&models.Download{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&models.Download{}).
		Where("status = ?", models.DownloadDelivered).
		Count(&stats.Delivered).Error; err != nil {
		return nil, err
	}
	stats.Failed = stats.Total - stats.Delivered

	var bytes *int64
	if err := r.db.Model(&models.Download{}).
		Where("status = ?", models.DownloadDelivered).
		Select("SUM(bytes)").Scan(&bytes).Error; err != nil {
		return nil, err
	}
	if bytes != nil {
		stats.Bytes = *bytes
	}
	return &stats, nil
}

// CountSince 指定时间之后的流水数
func (r *DownloadRepository) CountSince(since time.Time) (int64, error) {
	var n int64
	err := r.db.Model(&models.Download{}).Where("created_at >= ?", since).Count(&n).Error
	return n, err
}
