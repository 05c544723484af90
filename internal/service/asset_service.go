package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"streamvault/internal/domain"
	"streamvault/internal/service/encoder"
)

// Определение пользовательских ошибок
var (
	ErrInvalidIngest   = errors.New("invalid ingest event")
	ErrAssetNotFailed  = errors.New("asset is not in a failed state")
	ErrAssetNotRemoted = errors.New("asset has no remote encoding id")
)

// AssetService обслуживает событие инжеста и операторские операции
type AssetService struct {
	store   AssetStore
	encoder EncoderClient
	logger  *logrus.Logger
}

func NewAssetService(store AssetStore, encoderClient EncoderClient, logger *logrus.Logger) *AssetService {
	return &AssetService{
		store:   store,
		encoder: encoderClient,
		logger:  logger,
	}
}

// CreateFromIngest регистрирует полностью записанный объект хранилища.
// Ключ нормализуется здесь, один раз: дальше он неизменяем.
func (s *AssetService) CreateFromIngest(ctx context.Context, storageKey, ownerID string) (*domain.VideoAsset, error) {
	if storageKey == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: storageKey and ownerId are required", ErrInvalidIngest)
	}

	asset := &domain.VideoAsset{
		UUID:           uuid.New(),
		StorageKey:     domain.NormalizeStorageKey(storageKey),
		OwnerID:        ownerID,
		DeliveryStatus: domain.StatusNotMigrated,
	}

	if err := s.store.Create(ctx, asset); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"asset_uuid":  asset.UUID,
		"storage_key": asset.StorageKey,
		"owner_id":    asset.OwnerID,
	}).Info("Video asset registered")

	return asset, nil
}

// Get возвращает запись о видеообъекте
func (s *AssetService) Get(ctx context.Context, id uuid.UUID) (*domain.VideoAsset, error) {
	return s.store.GetByUUID(ctx, id)
}

// RetryFailed выполняет операторский сброс REMOTE_FAILED -> NOT_MIGRATED.
// Сброс всегда явный: автоматический повтор отравленного объекта запрещён.
func (s *AssetService) RetryFailed(ctx context.Context, id uuid.UUID) (*domain.VideoAsset, error) {
	applied, err := s.store.ResetFailed(ctx, id)
	if err != nil {
		return nil, err
	}

	asset, getErr := s.store.GetByUUID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}

	if !applied {
		return nil, fmt.Errorf("%w: current status is %s", ErrAssetNotFailed, asset.DeliveryStatus)
	}

	s.logger.WithField("asset_uuid", id).Info("Failed migration reset by operator")
	return asset, nil
}

// RemoteStatus опрашивает сервис кодирования о состоянии удалённой копии
func (s *AssetService) RemoteStatus(ctx context.Context, id uuid.UUID) (encoder.Status, error) {
	asset, err := s.store.GetByUUID(ctx, id)
	if err != nil {
		return "", err
	}

	if asset.RemoteEncodingID == nil {
		return "", ErrAssetNotRemoted
	}

	return s.encoder.QueryStatus(ctx, *asset.RemoteEncodingID)
}
