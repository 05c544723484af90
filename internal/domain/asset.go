package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus описывает этап жизненного цикла миграции видео
type DeliveryStatus string

const (
	StatusNotMigrated        DeliveryStatus = "NOT_MIGRATED"
	StatusMigrationSubmitted DeliveryStatus = "MIGRATION_SUBMITTED"
	StatusRemoteReady        DeliveryStatus = "REMOTE_READY"
	StatusRemoteFailed       DeliveryStatus = "REMOTE_FAILED"
)

// Определение пользовательских ошибок
var (
	ErrAssetNotFound = errors.New("video asset not found")
)

// VideoAsset представляет один загруженный видеообъект и состояние его доставки
type VideoAsset struct {
	UUID                   uuid.UUID      `json:"uuid" db:"uuid"`
	StorageKey             string         `json:"storage_key" db:"storage_key"`
	OwnerID                string         `json:"owner_id" db:"owner_id"`
	RemoteEncodingID       *string        `json:"remote_encoding_id,omitempty" db:"remote_encoding_id"`
	DeliveryStatus         DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	FailureReason          *string        `json:"failure_reason,omitempty" db:"failure_reason"`
	LastMigrationAttemptAt *time.Time     `json:"last_migration_attempt_at,omitempty" db:"last_migration_attempt_at"`
	CreatedAt              time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at" db:"updated_at"`
}

// Eligible сообщает, подлежит ли объект отправке на миграцию
func (a *VideoAsset) Eligible() bool {
	return a.DeliveryStatus == StatusNotMigrated && a.StorageKey != "" && a.RemoteEncodingID == nil
}

// Terminal сообщает, достиг ли объект конечного состояния цикла
func (s DeliveryStatus) Terminal() bool {
	return s == StatusRemoteReady || s == StatusRemoteFailed
}

// EncodingNotification представляет вебхук от внешнего сервиса кодирования
type EncodingNotification struct {
	RemoteID  string `json:"remoteId"`
	Status    string `json:"status"` // ready | error
	ErrorCode string `json:"errorCode,omitempty"`
}

// Valid проверяет синтаксическую корректность уведомления
func (n *EncodingNotification) Valid() bool {
	if n.RemoteID == "" {
		return false
	}
	return n.Status == "ready" || n.Status == "error"
}

// TerminalStatus переводит статус уведомления в статус доставки
func (n *EncodingNotification) TerminalStatus() DeliveryStatus {
	if n.Status == "ready" {
		return StatusRemoteReady
	}
	return StatusRemoteFailed
}
