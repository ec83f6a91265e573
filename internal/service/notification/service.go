// internal/service/notification/service.go
package notification

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"vaspay-service/internal/domain/notification"
	"vaspay-service/internal/domain/websocket"
	"vaspay-service/internal/repository/postgres"
	ws "vaspay-service/internal/websocket"
)

// NotificationService persists notifications and mirrors them to any open
// websocket sessions.
type NotificationService struct {
	repo *postgres.NotificationRepository
	hub  *ws.Hub
}

func NewNotificationService(repo *postgres.NotificationRepository, hub *ws.Hub) *NotificationService {
	return &NotificationService{
		repo: repo,
		hub:  hub,
	}
}

// CreateAndPush creates a notification and pushes it via WebSocket
func (s *NotificationService) CreateAndPush(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	n := &notification.Notification{
		IdentityID: req.IdentityID,
		Title:      req.Title,
		Message:    req.Message,
		Type:       req.Type,
		Metadata:   req.Metadata,
	}

	if req.ExpiresAt != nil {
		n.ExpiresAt = sql.NullTime{Time: *req.ExpiresAt, Valid: true}
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.pushToWebSocket(n)

	return n, nil
}

// GetByID retrieves a notification by ID
func (s *NotificationService) GetByID(ctx context.Context, id int64, identityID int64) (*notification.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Verify ownership
	if n.IdentityID != identityID {
		return nil, fmt.Errorf("notification not found")
	}

	return n, nil
}

// GetUserNotifications retrieves notifications for a user with filters
func (s *NotificationService) GetUserNotifications(ctx context.Context, identityID int64, filters *notification.NotificationListFilters) (*notification.NotificationListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	notifications, total, err := s.repo.GetUserNotifications(ctx, identityID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	summary, err := s.repo.GetSummary(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize > 0 {
		totalPages++
	}

	return &notification.NotificationListResponse{
		Notifications: notifications,
		Summary:       *summary,
		Total:         total,
		Page:          filters.Page,
		PageSize:      filters.PageSize,
		TotalPages:    totalPages,
	}, nil
}

// GetLatestNotifications retrieves the latest N notifications for a user
func (s *NotificationService) GetLatestNotifications(ctx context.Context, identityID int64, limit int) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	return s.repo.GetLatestNotifications(ctx, identityID, limit)
}

// MarkAsRead marks a notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, id int64, identityID int64) error {
	if err := s.repo.MarkAsRead(ctx, id, identityID); err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}

	count, err := s.repo.GetUnreadCount(ctx, identityID)
	if err != nil {
		log.Printf("Failed to get unread count: %v", err)
	} else {
		s.hub.BroadcastNotificationCount(identityID, count)
	}

	return nil
}

// MarkAllAsRead marks all notifications as read for a user
func (s *NotificationService) MarkAllAsRead(ctx context.Context, identityID int64) error {
	if err := s.repo.MarkAllAsRead(ctx, identityID); err != nil {
		return fmt.Errorf("failed to mark all as read: %w", err)
	}

	s.hub.BroadcastNotificationCount(identityID, 0)

	return nil
}

// GetUnreadCount gets the count of unread notifications
func (s *NotificationService) GetUnreadCount(ctx context.Context, identityID int64) (int, error) {
	return s.repo.GetUnreadCount(ctx, identityID)
}

// GetSummary gets notification summary for a user
func (s *NotificationService) GetSummary(ctx context.Context, identityID int64) (*notification.NotificationSummary, error) {
	return s.repo.GetSummary(ctx, identityID)
}

// Delete deletes a notification
func (s *NotificationService) Delete(ctx context.Context, id int64, identityID int64) error {
	if err := s.repo.Delete(ctx, id, identityID); err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

// DeleteExpiredNotifications deletes expired notifications; meant to run
// on a schedule.
func (s *NotificationService) DeleteExpiredNotifications(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpiredNotifications(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}

	if deleted > 0 {
		log.Printf("Deleted %d expired notifications", deleted)
	}
	return deleted, nil
}

// pushToWebSocket pushes notification to WebSocket
func (s *NotificationService) pushToWebSocket(n *notification.Notification) {
	if s.hub == nil {
		return
	}

	wsData := &websocket.NotificationData{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		IsRead:    n.IsRead,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	}

	s.hub.BroadcastNotification(n.IdentityID, wsData)
}
