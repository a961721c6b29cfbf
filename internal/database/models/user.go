// Package models 数据模型 - 用户
package models

import (
	"time"
)

// User 用户表
//
// 仅在请求到达终态时被更新，从不删除。
type User struct {
	TG             int64     `gorm:"column:tg;primaryKey;autoIncrement:false" json:"tg"`
	Username       *string   `gorm:"column:username;size:255" json:"username,omitempty"`
	FirstName      *string   `gorm:"column:first_name;size:255" json:"first_name,omitempty"`
	FirstSeen      time.Time `gorm:"column:first_seen" json:"first_seen"`
	LastActive     time.Time `gorm:"column:last_active" json:"last_active"`
	TotalDownloads int64     `gorm:"column:total_downloads;default:0" json:"total_downloads"` // 成功下载总数
	TotalBytes     int64     `gorm:"column:total_bytes;default:0" json:"total_bytes"`         // 成功下载总字节
}

// TableName 表名
func (User) TableName() string {
	return "users"
}
