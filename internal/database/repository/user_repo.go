// Package repository 用户数据仓库
package repository

import (
	"errors"
	"time"

	"github.com/smysle/sakura-dlbot-go/internal/database"
	"github.com/smysle/sakura-dlbot-go/internal/database/models"
	"gorm.io/gorm"
)

// UserRepository 用户仓库
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository() *UserRepository {
	return &UserRepository{db: database.GetDB()}
}

// GetByTG 根据 TG ID 获取用户
func (r *UserRepository) GetByTG(tg int64) (*models.User, error) {
	var user models.User
	err := r.db.Where("tg = ?", tg).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EnsureExists 确保用户记录存在，同时刷新活跃时间和昵称
func (r *UserRepository) EnsureExists(tg int64, username, firstName string) (*models.User, error) {
	now := time.Now()

	user, err := r.GetByTG(tg)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = &models.User{
			TG:         tg,
			FirstSeen:  now,
			LastActive: now,
		}
		if username != "" {
			user.Username = &username
		}
		if firstName != "" {
			user.FirstName = &firstName
		}
		if err := r.db.Create(user).Error; err != nil {
			return nil, err
		}
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"last_active": now}
	if username != "" {
		updates["username"] = username
	}
	if firstName != "" {
		updates["first_name"] = firstName
	}
	if err := r.db.Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// AddUsage 成功下载后累加计数
func (r *UserRepository) AddUsage(tg int64, bytes int64) error {
	return r.db.Model(&models.User{}).Where("tg = ?", tg).Updates(map[string]interface{}{
		"total_downloads": gorm.Expr("total_downloads + 1"),
		"total_bytes":     gorm.Expr("total_bytes + ?", bytes),
		"last_active":     time.Now(),
	}).Error
}

// Count 用户总数
func (r *UserRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&models.User{}).Count(&n).Error
	return n, err
}

// TopByDownloads 按下载数取前 N 名
func (r *UserRepository) TopByDownloads(limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("total_downloads DESC").Limit(limit).Find(&users).Error
	return users, err
}
