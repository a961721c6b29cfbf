package bot

import (
	"time"

	"github.com/smysle/sakura-dlbot-go/internal/database/models"
	"github.com/smysle/sakura-dlbot-go/internal/database/repository"
	"github.com/smysle/sakura-dlbot-go/internal/pipeline"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// dbLedger 终态流水落库，同时维护用户累计量
type dbLedger struct {
	downloads *repository.DownloadRepository
	users     *repository.UserRepository
}

func newDBLedger() *dbLedger {
	return &dbLedger{
		downloads: repository.NewDownloadRepository(),
		users:     repository.NewUserRepository(),
	}
}

// RecordTerminal 写一条终态流水（以 request_id 幂等）
func (l *dbLedger) RecordTerminal(req *pipeline.Request) error {
	now := time.Now()
	record := &models.Download{
		RequestID: req.ID,
		TG:        req.UserID,
		URL:       req.URL,
		AudioOnly: req.AudioOnly,
		Bytes:     req.Bytes,
		CreatedAt: req.CreatedAt,
	}
	if req.Title != "" {
		title := req.Title
		record.Title = &title
	}
	if req.FormatID != "" {
		formatID := req.FormatID
		record.FormatID = &formatID
	}

	switch req.Status {
	case pipeline.StatusDelivered:
		record.Status = models.DownloadDelivered
		record.CompletedAt = &now
	default:
		record.Status = models.DownloadFailed
		record.CompletedAt = &now
		if req.FailKind != "" {
			kind := string(req.FailKind)
			record.ErrorKind = &kind
		}
	}

	if err := l.downloads.RecordTerminal(record); err != nil {
		return err
	}

	// 成功送达才计入用户累计量
	if record.Status == models.DownloadDelivered {
		if err := l.users.AddUsage(req.UserID, req.Bytes); err != nil {
			logger.Warn().Err(err).Int64("tg", req.UserID).Msg("更新用户累计量失败")
		}
	}
	return nil
}
