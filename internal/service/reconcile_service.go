package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"streamvault/internal/domain"
	"streamvault/internal/metrics"
)

// Outcome описывает результат применения одного уведомления
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeAnomaly   Outcome = "anomaly"
	OutcomeOrphan    Outcome = "orphan"
)

var errInvalidNotification = errors.New("invalid encoding notification")

// ReconcileService применяет асинхронные терминальные уведомления
// сервиса кодирования к таблице записей. Доставка at-least-once:
// повторы и конфликты разрешаются условной записью по remote_encoding_id.
type ReconcileService struct {
	store   AssetStore
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewReconcileService(store AssetStore, logger *logrus.Logger, m *metrics.Metrics) *ReconcileService {
	return &ReconcileService{
		store:   store,
		logger:  logger,
		metrics: m,
	}
}

// Apply применяет одно уведомление и возвращает его исход.
// Ошибка возвращается только при сбое базы: все остальные случаи
// (повтор, конфликт, неизвестный id) это валидные исходы.
func (s *ReconcileService) Apply(ctx context.Context, n domain.EncodingNotification) (Outcome, error) {
	if !n.Valid() {
		return "", errInvalidNotification
	}

	target := n.TerminalStatus()
	var reason *string
	if target == domain.StatusRemoteFailed {
		code := n.ErrorCode
		if code == "" {
			code = "unknown_error"
		}
		reason = &code
	}

	applied, err := s.store.ApplyTerminal(ctx, n.RemoteID, target, reason)
	if err != nil {
		return "", fmt.Errorf("failed to apply terminal status: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"remote_id": n.RemoteID,
		"status":    n.Status,
	})

	if applied {
		log.Info("Terminal encoding state applied")
		s.count(OutcomeApplied)
		return OutcomeApplied, nil
	}

	// Условная запись не прошла: либо повторная доставка, либо
	// неизвестный id, либо конфликт с уже записанным исходом
	asset, err := s.store.GetByRemoteID(ctx, n.RemoteID)
	if errors.Is(err, domain.ErrAssetNotFound) {
		// Отвечаем успехом, чтобы не провоцировать шторм повторов
		log.Warn("Orphaned notification for unknown remote id")
		s.count(OutcomeOrphan)
		return OutcomeOrphan, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up asset by remote id: %w", err)
	}

	if asset.DeliveryStatus == target {
		log.Debug("Duplicate notification, state already recorded")
		s.count(OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	// Первое терминальное наблюдение авторитетно: расхождение не перезаписываем
	log.WithFields(logrus.Fields{
		"recorded_status": asset.DeliveryStatus,
		"asset_uuid":      asset.UUID,
	}).Error("Conflicting terminal notification ignored")
	s.count(OutcomeAnomaly)
	return OutcomeAnomaly, nil
}

func (s *ReconcileService) count(outcome Outcome) {
	if s.metrics != nil {
		s.metrics.WebhooksTotal.WithLabelValues(string(outcome)).Inc()
	}
}
