// internal/service/recovery/recovery_service.go
package recovery

import (
	"context"
	"fmt"
	"time"

	"vaspay-service/internal/domain/notification"
	"vaspay-service/internal/domain/transaction"
	wsdomain "vaspay-service/internal/domain/websocket"
	xerrors "vaspay-service/internal/pkg/errors"
	"vaspay-service/internal/repository/postgres"

	"go.uber.org/zap"
)

type TagStore interface {
	DueTags(ctx context.Context, now time.Time, limit int) ([]transaction.EmergencyPricingTag, error)
	Stats(ctx context.Context) (*postgres.RecoveryStats, error)
	OpenAnomalies(ctx context.Context, limit int) ([]transaction.ReconciliationAnomaly, error)
	ResolveAnomaly(ctx context.Context, id string) error
}

// Compensator settles one emergency-pricing tag atomically: the tag claim
// is the compare-and-set, the overage credit commits with it.
type Compensator interface {
	CompensateTag(ctx context.Context, tag *transaction.EmergencyPricingTag) (float64, error)
}

type Notifier interface {
	CreateAndPush(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error)
}

type BalancePusher interface {
	BroadcastBalanceUpdate(userID int64, data wsdomain.BalanceUpdateData)
}

// Result summarizes one recovery sweep.
type Result struct {
	Processed   int     `json:"processed"`
	Compensated int     `json:"compensated"`
	Skipped     int     `json:"skipped"`
	TotalPaid   float64 `json:"total_paid"`
}

// Service pays back emergency-pricing overages once the recovery deadline
// has passed. Sweeps are safe to run concurrently: the per-tag claim
// guarantees each overage is paid at most once.
type Service struct {
	tags        TagStore
	compensator Compensator
	notifier    Notifier
	pusher      BalancePusher
	batchSize   int
	logger      *zap.Logger
}

func NewService(tags TagStore, compensator Compensator, notifier Notifier, pusher BalancePusher, logger *zap.Logger) *Service {
	return &Service{
		tags:        tags,
		compensator: compensator,
		notifier:    notifier,
		pusher:      pusher,
		batchSize:   100,
		logger:      logger,
	}
}

// ProcessDue sweeps tags whose recovery deadline has passed and pays each
// overage back to the owning wallet.
func (s *Service) ProcessDue(ctx context.Context) (*Result, error) {
	due, err := s.tags.DueTags(ctx, time.Now(), s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list due tags: %w", err)
	}

	result := &Result{}
	for i := range due {
		tag := &due[i]
		result.Processed++

		newBalance, err := s.compensator.CompensateTag(ctx, tag)
		if err != nil {
			if xerrors.Is(err, xerrors.ErrConflict) {
				// Another sweep claimed it first.
				result.Skipped++
				continue
			}
			s.logger.Error("tag compensation failed",
				zap.String("tag_id", tag.ID),
				zap.String("reference", tag.Reference),
				zap.Error(err))
			result.Skipped++
			continue
		}

		overage := tag.Overage()
		if overage <= 0 {
			continue
		}
		result.Compensated++
		result.TotalPaid += overage

		s.pusher.BroadcastBalanceUpdate(tag.UserID, wsdomain.BalanceUpdateData{
			Balance:   newBalance,
			Currency:  "NGN",
			Reference: "RECOVERY_" + tag.ID,
			Reason:    "recovery",
		})

		s.notify(ctx, tag, overage, newBalance)

		s.logger.Info("emergency overage compensated",
			zap.String("tag_id", tag.ID),
			zap.Int64("user_id", tag.UserID),
			zap.String("reference", tag.Reference),
			zap.Float64("overage", overage))
	}

	if result.Processed > 0 {
		s.logger.Info("recovery sweep complete",
			zap.Int("processed", result.Processed),
			zap.Int("compensated", result.Compensated),
			zap.Int("skipped", result.Skipped),
			zap.Float64("total_paid", result.TotalPaid))
	}
	return result, nil
}

// Run processes due tags on a fixed interval until the context is
// cancelled. Intended to be launched as a goroutine at startup.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("recovery worker started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("recovery worker stopped")
			return
		case <-ticker.C:
			if _, err := s.ProcessDue(ctx); err != nil {
				s.logger.Error("recovery sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) Stats(ctx context.Context) (*postgres.RecoveryStats, error) {
	return s.tags.Stats(ctx)
}

func (s *Service) OpenAnomalies(ctx context.Context, limit int) ([]transaction.ReconciliationAnomaly, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.tags.OpenAnomalies(ctx, limit)
}

func (s *Service) ResolveAnomaly(ctx context.Context, id string) error {
	if id == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "anomaly id is required")
	}
	return s.tags.ResolveAnomaly(ctx, id)
}

func (s *Service) notify(ctx context.Context, tag *transaction.EmergencyPricingTag, overage, newBalance float64) {
	_, err := s.notifier.CreateAndPush(ctx, &notification.CreateNotificationRequest{
		IdentityID: tag.UserID,
		Title:      "Pricing Adjustment Refund",
		Message: fmt.Sprintf("₦%.2f has been refunded to your wallet for your %s purchase made during provider maintenance. New balance: ₦%.2f",
			overage, tag.Network, newBalance),
		Type: notification.TypeRecovery,
		Metadata: map[string]interface{}{
			"tag_id":    tag.ID,
			"reference": tag.Reference,
			"overage":   overage,
		},
	})
	if err != nil {
		s.logger.Warn("recovery notification failed", zap.Int64("user_id", tag.UserID), zap.Error(err))
	}
}
