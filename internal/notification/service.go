package notification

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
)

// Service is a composite notification service that can send notifications
// through multiple channels
type Service struct {
	discord *DiscordService
}

// NewService creates a new notification service
func NewService(log zerolog.Logger, webhookURL string) domain.NotificationService {
	var discord *DiscordService
	if webhookURL != "" {
		discord = NewDiscordService(log, webhookURL)
	}

	return &Service{
		discord: discord,
	}
}

// SendTaskFailure reports failed tasks through all configured channels
func (s *Service) SendTaskFailure(ctx context.Context, task string, err error) error {
	if s.discord != nil {
		return s.discord.SendTaskFailure(ctx, task, err)
	}
	return nil
}

// SendDownloadEvent reports download outcomes through all configured channels
func (s *Service) SendDownloadEvent(ctx context.Context, status domain.DownloadStatus, message string) error {
	if s.discord != nil {
		return s.discord.SendDownloadEvent(ctx, status, message)
	}
	return nil
}
