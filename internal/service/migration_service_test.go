package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"streamvault/internal/config"
	"streamvault/internal/domain"
	"streamvault/internal/service/encoder"
)

func testMigrationConfig() config.MigrationConfig {
	return config.MigrationConfig{
		BatchSize:      10,
		RateLimitDelay: time.Millisecond,
		SignedURLTTL:   time.Hour,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newEligibleAsset(key string) *domain.VideoAsset {
	return &domain.VideoAsset{
		UUID:           uuid.New(),
		StorageKey:     key,
		OwnerID:        "user-1",
		DeliveryStatus: domain.StatusNotMigrated,
		CreatedAt:      time.Now(),
	}
}

func TestMigrationRunSubmitsEligibleAsset(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage("clips/a.mp4")
	enc := newFakeEncoder()

	asset := newEligibleAsset("clips/a.mp4")
	store.add(asset)

	svc := NewMigrationService(store, storage, enc, testLogger(), nil, testMigrationConfig())

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Selected)
	require.Equal(t, 1, summary.Submitted)
	require.Equal(t, 1, enc.submitCount())

	got := store.get(asset.UUID)
	require.Equal(t, domain.StatusMigrationSubmitted, got.DeliveryStatus)
	require.NotNil(t, got.RemoteEncodingID)
	require.NotNil(t, got.LastMigrationAttemptAt)

	// Подписанный URL выдан именно для ключа объекта
	require.Contains(t, enc.submits[0].SourceURL, "clips/a.mp4")
	require.Equal(t, asset.UUID.String(), enc.submits[0].Passthrough)
	require.Equal(t, "signed", enc.submits[0].PlaybackPolicy)
}

func TestMigrationRunIsIdempotent(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage("clips/a.mp4")
	enc := newFakeEncoder()

	asset := newEligibleAsset("clips/a.mp4")
	store.add(asset)

	svc := NewMigrationService(store, storage, enc, testLogger(), nil, testMigrationConfig())

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	// Второй запуск видит ненулевой remote_encoding_id и пропускает объект
	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Selected)
	require.Equal(t, 1, enc.submitCount())

	got := store.get(asset.UUID)
	require.Equal(t, "enc-0001", *got.RemoteEncodingID)
}

func TestMigrationConcurrentRunsSingleRemoteID(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage("clips/a.mp4")
	enc := newFakeEncoder()

	asset := newEligibleAsset("clips/a.mp4")
	store.add(asset)

	// Оба запуска отбирают один и тот же объект до первой условной записи
	var gate sync.WaitGroup
	gate.Add(2)
	store.onSelect = func() {
		gate.Done()
		gate.Wait()
	}

	svc := NewMigrationService(store, storage, enc, testLogger(), nil, testMigrationConfig())

	var wg sync.WaitGroup
	summaries := make([]RunSummary, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i], errs[i] = svc.Run(context.Background())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Побеждает ровно один писатель, второй фиксирует пропуск
	require.Equal(t, 1, summaries[0].Submitted+summaries[1].Submitted)
	require.Equal(t, 1, summaries[0].Skipped+summaries[1].Skipped)

	got := store.get(asset.UUID)
	require.NotNil(t, got.RemoteEncodingID)
	require.Equal(t, domain.StatusMigrationSubmitted, got.DeliveryStatus)
}

func TestMigrationTransientFailureLeavesAssetEligible(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage("clips/a.mp4")
	enc := newFakeEncoder()
	enc.submitErr = &encoder.APIError{StatusCode: 503, Code: "unavailable"}

	asset := newEligibleAsset("clips/a.mp4")
	store.add(asset)

	svc := NewMigrationService(store, storage, enc, testLogger(), nil, testMigrationConfig())

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Transient)
	require.Equal(t, 0, summary.Submitted)

	// Объект не изменён и останется в отборе следующего запуска
	got := store.get(asset.UUID)
	require.Equal(t, domain.StatusNotMigrated, got.DeliveryStatus)
	require.Nil(t, got.RemoteEncodingID)
	require.True(t, got.Eligible())
}

func TestMigrationPresignFailureAbortsRun(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage("clips/a.mp4", "clips/b.mp4")
	storage.presignErr = errors.New("signing credentials rejected")
	enc := newFakeEncoder()

	a := newEligibleAsset("clips/a.mp4")
	b := newEligibleAsset("clips/b.mp4")
	b.CreatedAt = a.CreatedAt.Add(time.Second)
	store.add(a)
	store.add(b)

	svc := NewMigrationService(store, storage, enc, testLogger(), nil, testMigrationConfig())

	// Ошибка подписи это ошибка конфигурации: пакет прерывается целиком,
	// ни один объект не считается временно сбойным
	summary, err := svc.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, 0, summary.Transient)
	require.Equal(t, 0, summary.Submitted)
	require.Equal(t, 0, enc.submitCount())

	for _, asset := range []*domain.VideoAsset{a, b} {
		got := store.get(asset.UUID)
		require.Equal(t, domain.StatusNotMigrated, got.DeliveryStatus)
		require.Nil(t, got.RemoteEncodingID)
	}
}

func TestMigrationTerminalFailureMarksFailed(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage("clips/a.mp4")
	enc := newFakeEncoder()
	enc.submitErr = &encoder.APIError{StatusCode: 400, Code: "invalid_source"}

	asset := newEligibleAsset("clips/a.mp4")
	store.add(asset)

	svc := NewMigrationService(store, storage, enc, testLogger(), nil, testMigrationConfig())

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Terminal)

	got := store.get(asset.UUID)
	require.Equal(t, domain.StatusRemoteFailed, got.DeliveryStatus)
	require.Nil(t, got.RemoteEncodingID)
	require.NotNil(t, got.FailureReason)

	// Без операторского сброса объект не отбирается повторно
	summary, err = svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Selected)
	require.Equal(t, 0, enc.submitCount())
}

func TestMigrationDryRunSkipsSubmission(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage("clips/a.mp4")
	enc := newFakeEncoder()

	asset := newEligibleAsset("clips/a.mp4")
	store.add(asset)

	cfg := testMigrationConfig()
	cfg.DryRun = true
	svc := NewMigrationService(store, storage, enc, testLogger(), nil, cfg)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 0, enc.submitCount())

	got := store.get(asset.UUID)
	require.Equal(t, domain.StatusNotMigrated, got.DeliveryStatus)
}

func TestMigrationBatchSizeBoundsWork(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage()
	enc := newFakeEncoder()

	for i := 0; i < 5; i++ {
		a := newEligibleAsset(string(rune('a'+i)) + ".mp4")
		a.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		store.add(a)
	}

	cfg := testMigrationConfig()
	cfg.BatchSize = 2
	svc := NewMigrationService(store, storage, enc, testLogger(), nil, cfg)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Selected)
	require.Equal(t, 2, summary.Submitted)
}

func TestMigrationAttachesThumbnailWhenPresent(t *testing.T) {
	store := newFakeStore()
	storage := newFakeStorage("clips/a.mp4", "thumbnails/clips/a.jpg")
	enc := newFakeEncoder()

	store.add(newEligibleAsset("clips/a.mp4"))

	svc := NewMigrationService(store, storage, enc, testLogger(), nil, testMigrationConfig())

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, enc.submitCount())
	require.Contains(t, enc.submits[0].ThumbnailURL, "thumbnails/clips/a.jpg")
}

func TestThumbnailKeyDerivation(t *testing.T) {
	require.Equal(t, "thumbnails/clips/a.jpg", thumbnailKeyFor("clips/a.mp4"))
	require.Equal(t, "", thumbnailKeyFor("clips/noext"))
}
