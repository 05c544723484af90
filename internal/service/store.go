package service

import (
	"context"

	"github.com/google/uuid"

	"streamvault/internal/domain"
	"streamvault/internal/service/encoder"
)

// AssetStore определяет интерфейс таблицы записей о видеообъектах.
// Все мутации условные (compare-and-set): побеждает первый писатель.
type AssetStore interface {
	Create(ctx context.Context, asset *domain.VideoAsset) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*domain.VideoAsset, error)
	GetByRemoteID(ctx context.Context, remoteID string) (*domain.VideoAsset, error)
	SelectEligible(ctx context.Context, limit int) ([]domain.VideoAsset, error)
	TouchAttempt(ctx context.Context, id uuid.UUID) error
	MarkSubmitted(ctx context.Context, id uuid.UUID, remoteID string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ApplyTerminal(ctx context.Context, remoteID string, status domain.DeliveryStatus, reason *string) (bool, error)
	ResetFailed(ctx context.Context, id uuid.UUID) (bool, error)
	ListStorageKeys(ctx context.Context, afterKey string, limit int) ([]string, error)
}

// EncoderClient определяет интерфейс клиента внешнего сервиса кодирования
type EncoderClient interface {
	SubmitCopy(ctx context.Context, in encoder.SubmitInput) (string, error)
	QueryStatus(ctx context.Context, remoteID string) (encoder.Status, error)
}
