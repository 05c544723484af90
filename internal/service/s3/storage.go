// storage.go
package s3

import (
	"context"
	"time"
)

// ObjectInfo представляет один объект из листинга хранилища
type ObjectInfo struct {
	Key  string
	Size int64
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем
type Storage interface {
	// PresignGet возвращает подписанный URL на чтение одного объекта
	PresignGet(ctx context.Context, key string, validity time.Duration) (string, error)
	// ListPage возвращает страницу листинга после указанного ключа
	ListPage(ctx context.Context, startAfter string, limit int32) ([]ObjectInfo, error)
	// ObjectExists проверяет наличие объекта без его чтения
	ObjectExists(ctx context.Context, key string) (bool, error)
}
