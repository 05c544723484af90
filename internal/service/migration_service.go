package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"streamvault/internal/config"
	"streamvault/internal/domain"
	"streamvault/internal/metrics"
	"streamvault/internal/service/encoder"
	"streamvault/internal/service/s3"
)

// RunSummary представляет итог одного запуска движка миграции
type RunSummary struct {
	Selected  int `json:"selected"`
	Submitted int `json:"submitted"`
	Transient int `json:"transient_failed"`
	Terminal  int `json:"terminal_failed"`
	Skipped   int `json:"skipped"`
}

// MigrationService перегоняет видеообъекты из хранилища во внешний
// сервис кодирования. Повторные и параллельные запуски безопасны:
// запись remote_encoding_id условная, отбор исключает уже отправленные.
type MigrationService struct {
	store   AssetStore
	storage s3.Storage
	encoder EncoderClient
	logger  *logrus.Logger
	metrics *metrics.Metrics
	cfg     config.MigrationConfig
}

func NewMigrationService(
	store AssetStore,
	storage s3.Storage,
	encoderClient EncoderClient,
	logger *logrus.Logger,
	m *metrics.Metrics,
	cfg config.MigrationConfig,
) *MigrationService {
	return &MigrationService{
		store:   store,
		storage: storage,
		encoder: encoderClient,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
	}
}

// Run выполняет один пакет миграции и возвращает сводку.
// Ошибка возвращается при невозможности работать с базой и при ошибке
// подписи URL (это ошибки конфигурации, а не конкретного объекта);
// сбои отдельных объектов на стороне сервиса кодирования изолируются
// и попадают в сводку.
func (s *MigrationService) Run(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	assets, err := s.store.SelectEligible(ctx, s.cfg.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to select eligible assets: %w", err)
	}
	summary.Selected = len(assets)

	for i := range assets {
		// Глобальный троттлинг между обращениями к сервису кодирования
		if i > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(s.cfg.RateLimitDelay):
			}
		}

		if err := s.migrateOne(ctx, &assets[i], &summary); err != nil {
			return summary, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"selected":  summary.Selected,
		"submitted": summary.Submitted,
		"transient": summary.Transient,
		"terminal":  summary.Terminal,
		"skipped":   summary.Skipped,
		"dry_run":   s.cfg.DryRun,
	}).Info("Migration batch finished")

	return summary, nil
}

func (s *MigrationService) migrateOne(ctx context.Context, asset *domain.VideoAsset, summary *RunSummary) error {
	log := s.logger.WithFields(logrus.Fields{
		"asset_uuid":  asset.UUID,
		"storage_key": asset.StorageKey,
	})

	if err := s.store.TouchAttempt(ctx, asset.UUID); err != nil {
		log.WithError(err).Warn("Failed to record migration attempt")
	}

	sourceURL, err := s.storage.PresignGet(ctx, asset.StorageKey, s.cfg.SignedURLTTL)
	if err != nil {
		// Ошибка подписи это ошибка конфигурации/учётных данных:
		// прерываем пакет целиком, пообъектный повтор здесь бессмыслен
		log.WithError(err).Error("Failed to presign source URL, aborting batch")
		return fmt.Errorf("failed to presign source URL for %s: %w", asset.StorageKey, err)
	}

	input := encoder.SubmitInput{
		SourceURL:      sourceURL,
		Passthrough:    asset.UUID.String(),
		PlaybackPolicy: "signed",
		Metadata: map[string]string{
			"owner_id":    asset.OwnerID,
			"storage_key": domain.NormalizeStorageKey(asset.StorageKey),
			"title":       path.Base(domain.DecodeStorageKey(asset.StorageKey)),
		},
	}

	// Превью прикладывается только если объект реально существует:
	// имя выводится по одному правилу, без гарантий соглашения об именах
	if thumbURL := s.presignThumbnail(ctx, asset.StorageKey, log); thumbURL != "" {
		input.ThumbnailURL = thumbURL
	}

	if s.cfg.DryRun {
		log.Info("Dry run: submission skipped")
		summary.Skipped++
		s.count("skipped")
		return nil
	}

	remoteID, err := s.encoder.SubmitCopy(ctx, input)
	if err != nil {
		if encoder.IsTransient(err) {
			// Объект не трогаем: он останется в отборе следующего запуска
			log.WithError(err).Warn("Transient submit failure, will retry on next run")
			summary.Transient++
			s.count("transient")
			return nil
		}

		log.WithError(err).Error("Terminal submit failure")
		if _, markErr := s.store.MarkFailed(ctx, asset.UUID, err.Error()); markErr != nil {
			log.WithError(markErr).Error("Failed to mark asset as failed")
		}
		summary.Terminal++
		s.count("terminal")
		return nil
	}

	applied, err := s.store.MarkSubmitted(ctx, asset.UUID, remoteID)
	if err != nil {
		log.WithError(err).WithField("remote_id", remoteID).
			Error("Failed to persist remote encoding id")
		summary.Transient++
		s.count("transient")
		return nil
	}

	if !applied {
		// Параллельный запуск успел первым: удалённая копия уже существует
		log.WithField("remote_id", remoteID).
			Warn("Concurrent run already submitted this asset")
		summary.Skipped++
		s.count("skipped")
		return nil
	}

	log.WithField("remote_id", remoteID).Info("Asset submitted for encoding")
	summary.Submitted++
	s.count("submitted")
	return nil
}

// presignThumbnail возвращает подписанный URL превью или пустую строку
func (s *MigrationService) presignThumbnail(ctx context.Context, key string, log *logrus.Entry) string {
	thumbKey := thumbnailKeyFor(key)
	if thumbKey == "" {
		return ""
	}

	exists, err := s.storage.ObjectExists(ctx, thumbKey)
	if err != nil {
		log.WithError(err).WithField("thumbnail_key", thumbKey).
			Warn("Failed to check thumbnail existence")
		return ""
	}
	if !exists {
		return ""
	}

	thumbURL, err := s.storage.PresignGet(ctx, thumbKey, s.cfg.SignedURLTTL)
	if err != nil {
		log.WithError(err).WithField("thumbnail_key", thumbKey).
			Warn("Failed to presign thumbnail URL")
		return ""
	}
	return thumbURL
}

// thumbnailKeyFor выводит ключ превью из ключа видео по единственному правилу
func thumbnailKeyFor(key string) string {
	decoded := domain.DecodeStorageKey(key)
	ext := path.Ext(decoded)
	if ext == "" {
		return ""
	}
	return "thumbnails/" + strings.TrimSuffix(decoded, ext) + ".jpg"
}

func (s *MigrationService) count(outcome string) {
	if s.metrics != nil {
		s.metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
	}
}
