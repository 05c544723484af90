package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"streamvault/internal/domain"
)

type AssetRepository struct {
	db *sqlx.DB
}

func NewAssetRepository(db *sqlx.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Create добавляет новую запись о видеообъекте в статусе NOT_MIGRATED
func (r *AssetRepository) Create(ctx context.Context, asset *domain.VideoAsset) error {
	query := `
        INSERT INTO video_assets (uuid, storage_key, owner_id, delivery_status)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		asset.UUID,
		asset.StorageKey,
		asset.OwnerID,
		asset.DeliveryStatus,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create video asset: %w", err)
	}

	return nil
}

func (r *AssetRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*domain.VideoAsset, error) {
	var asset domain.VideoAsset
	query := `SELECT * FROM video_assets WHERE uuid = $1`

	err := r.db.GetContext(ctx, &asset, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}

	return &asset, nil
}

func (r *AssetRepository) GetByRemoteID(ctx context.Context, remoteID string) (*domain.VideoAsset, error) {
	var asset domain.VideoAsset
	query := `SELECT * FROM video_assets WHERE remote_encoding_id = $1`

	err := r.db.GetContext(ctx, &asset, query, remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}

	return &asset, nil
}

// SelectEligible выбирает объекты, подлежащие миграции, в стабильном порядке
func (r *AssetRepository) SelectEligible(ctx context.Context, limit int) ([]domain.VideoAsset, error) {
	var assets []domain.VideoAsset
	query := `
        SELECT * FROM video_assets
        WHERE delivery_status = $1
          AND storage_key <> ''
          AND remote_encoding_id IS NULL
        ORDER BY created_at, uuid
        LIMIT $2`

	err := r.db.SelectContext(ctx, &assets, query, domain.StatusNotMigrated, limit)
	if err != nil {
		return nil, err
	}

	return assets, nil
}

// TouchAttempt фиксирует время попытки миграции
func (r *AssetRepository) TouchAttempt(ctx context.Context, id uuid.UUID) error {
	query := `
        UPDATE video_assets
        SET last_migration_attempt_at = CURRENT_TIMESTAMP
        WHERE uuid = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to touch migration attempt: %w", err)
	}
	return nil
}

// MarkSubmitted устанавливает remote_encoding_id ровно один раз.
// Условие remote_encoding_id IS NULL защищает от гонки параллельных запусков:
// проигравший запуск получает false и не создаёт вторую удалённую копию.
func (r *AssetRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, remoteID string) (bool, error) {
	query := `
        UPDATE video_assets
        SET remote_encoding_id = $2,
            delivery_status = $3,
            failure_reason = NULL,
            updated_at = CURRENT_TIMESTAMP
        WHERE uuid = $1
          AND remote_encoding_id IS NULL
          AND delivery_status = $4`

	result, err := r.db.ExecContext(ctx, query, id, remoteID,
		domain.StatusMigrationSubmitted, domain.StatusNotMigrated)
	if err != nil {
		return false, fmt.Errorf("failed to mark asset submitted: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkFailed переводит объект в REMOTE_FAILED после терминальной ошибки отправки
func (r *AssetRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	query := `
        UPDATE video_assets
        SET delivery_status = $2,
            failure_reason = $3,
            updated_at = CURRENT_TIMESTAMP
        WHERE uuid = $1
          AND remote_encoding_id IS NULL
          AND delivery_status = $4`

	result, err := r.db.ExecContext(ctx, query, id,
		domain.StatusRemoteFailed, reason, domain.StatusNotMigrated)
	if err != nil {
		return false, fmt.Errorf("failed to mark asset failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ApplyTerminal применяет терминальное состояние из вебхука.
// Условие по предыдущему статусу сериализует повторные доставки:
// применяется только первое терминальное наблюдение.
func (r *AssetRepository) ApplyTerminal(ctx context.Context, remoteID string, status domain.DeliveryStatus, reason *string) (bool, error) {
	query := `
        UPDATE video_assets
        SET delivery_status = $2,
            failure_reason = $3,
            updated_at = CURRENT_TIMESTAMP
        WHERE remote_encoding_id = $1
          AND delivery_status = $4`

	result, err := r.db.ExecContext(ctx, query, remoteID, status, reason,
		domain.StatusMigrationSubmitted)
	if err != nil {
		return false, fmt.Errorf("failed to apply terminal status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ResetFailed выполняет операторский сброс REMOTE_FAILED -> NOT_MIGRATED.
// remote_encoding_id очищается, иначе объект не пройдёт повторный отбор.
func (r *AssetRepository) ResetFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
        UPDATE video_assets
        SET delivery_status = $2,
            remote_encoding_id = NULL,
            failure_reason = NULL,
            updated_at = CURRENT_TIMESTAMP
        WHERE uuid = $1
          AND delivery_status = $3`

	result, err := r.db.ExecContext(ctx, query, id,
		domain.StatusNotMigrated, domain.StatusRemoteFailed)
	if err != nil {
		return false, fmt.Errorf("failed to reset failed asset: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListStorageKeys постранично выдает ключи в байтовом порядке (COLLATE "C"),
// чтобы порядок совпадал с порядком листинга S3 при слиянии в аудите
func (r *AssetRepository) ListStorageKeys(ctx context.Context, afterKey string, limit int) ([]string, error) {
	var keys []string
	query := `
        SELECT storage_key FROM video_assets
        WHERE storage_key COLLATE "C" > $1
        ORDER BY storage_key COLLATE "C"
        LIMIT $2`

	err := r.db.SelectContext(ctx, &keys, query, afterKey, limit)
	if err != nil {
		return nil, err
	}

	return keys, nil
}
