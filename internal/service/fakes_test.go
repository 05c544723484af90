package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamvault/internal/domain"
	"streamvault/internal/service/encoder"
	"streamvault/internal/service/s3"
)

// fakeStore — потокобезопасная имитация таблицы записей с CAS-семантикой
type fakeStore struct {
	mu       sync.Mutex
	assets   map[uuid.UUID]*domain.VideoAsset
	onSelect func() // вызывается после отбора, до условной записи
}

func newFakeStore() *fakeStore {
	return &fakeStore{assets: make(map[uuid.UUID]*domain.VideoAsset)}
}

func (f *fakeStore) add(a *domain.VideoAsset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.assets[a.UUID] = &cp
}

func (f *fakeStore) get(id uuid.UUID) *domain.VideoAsset {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.assets[id]; ok {
		cp := *a
		return &cp
	}
	return nil
}

func (f *fakeStore) Create(_ context.Context, asset *domain.VideoAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.StorageKey == asset.StorageKey {
			return fmt.Errorf("duplicate storage key %s", asset.StorageKey)
		}
	}
	asset.CreatedAt = time.Now()
	asset.UpdatedAt = asset.CreatedAt
	cp := *asset
	f.assets[asset.UUID] = &cp
	return nil
}

func (f *fakeStore) GetByUUID(_ context.Context, id uuid.UUID) (*domain.VideoAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok {
		return nil, domain.ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) GetByRemoteID(_ context.Context, remoteID string) (*domain.VideoAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.RemoteEncodingID != nil && *a.RemoteEncodingID == remoteID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAssetNotFound
}

func (f *fakeStore) SelectEligible(_ context.Context, limit int) ([]domain.VideoAsset, error) {
	f.mu.Lock()
	var eligible []domain.VideoAsset
	for _, a := range f.assets {
		if a.Eligible() {
			eligible = append(eligible, *a)
		}
	}
	f.mu.Unlock()

	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
		}
		return eligible[i].UUID.String() < eligible[j].UUID.String()
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	if f.onSelect != nil {
		f.onSelect()
	}
	return eligible, nil
}

func (f *fakeStore) TouchAttempt(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.assets[id]; ok {
		now := time.Now()
		a.LastMigrationAttemptAt = &now
	}
	return nil
}

func (f *fakeStore) MarkSubmitted(_ context.Context, id uuid.UUID, remoteID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok || a.RemoteEncodingID != nil || a.DeliveryStatus != domain.StatusNotMigrated {
		return false, nil
	}
	a.RemoteEncodingID = &remoteID
	a.DeliveryStatus = domain.StatusMigrationSubmitted
	a.FailureReason = nil
	return true, nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok || a.RemoteEncodingID != nil || a.DeliveryStatus != domain.StatusNotMigrated {
		return false, nil
	}
	a.DeliveryStatus = domain.StatusRemoteFailed
	a.FailureReason = &reason
	return true, nil
}

func (f *fakeStore) ApplyTerminal(_ context.Context, remoteID string, status domain.DeliveryStatus, reason *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.RemoteEncodingID != nil && *a.RemoteEncodingID == remoteID &&
			a.DeliveryStatus == domain.StatusMigrationSubmitted {
			a.DeliveryStatus = status
			a.FailureReason = reason
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ResetFailed(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok || a.DeliveryStatus != domain.StatusRemoteFailed {
		return false, nil
	}
	a.DeliveryStatus = domain.StatusNotMigrated
	a.RemoteEncodingID = nil
	a.FailureReason = nil
	return true, nil
}

func (f *fakeStore) ListStorageKeys(_ context.Context, afterKey string, limit int) ([]string, error) {
	f.mu.Lock()
	var keys []string
	for _, a := range f.assets {
		if a.StorageKey > afterKey {
			keys = append(keys, a.StorageKey)
		}
	}
	f.mu.Unlock()

	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// fakeStorage — имитация объектного хранилища
type fakeStorage struct {
	mu         sync.Mutex
	objects    map[string]int64 // декодированный ключ -> размер
	presigned  []string         // ключи, для которых выдавался URL
	presignErr error
}

func newFakeStorage(keys ...string) *fakeStorage {
	f := &fakeStorage{objects: make(map[string]int64)}
	for _, k := range keys {
		f.objects[k] = 1
	}
	return f
}

func (f *fakeStorage) PresignGet(_ context.Context, key string, validity time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	if validity <= 0 {
		return "", fmt.Errorf("validity duration must be positive")
	}
	decoded := domain.DecodeStorageKey(key)
	f.mu.Lock()
	f.presigned = append(f.presigned, decoded)
	f.mu.Unlock()
	return "https://storage.test/" + decoded + "?signature=stub", nil
}

func (f *fakeStorage) ListPage(_ context.Context, startAfter string, limit int32) ([]s3.ObjectInfo, error) {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if k > startAfter {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()

	sort.Strings(keys)
	if int32(len(keys)) > limit {
		keys = keys[:limit]
	}

	page := make([]s3.ObjectInfo, 0, len(keys))
	for _, k := range keys {
		page = append(page, s3.ObjectInfo{Key: k, Size: 1})
	}
	return page, nil
}

func (f *fakeStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[domain.DecodeStorageKey(key)]
	return ok, nil
}

// fakeEncoder — имитация внешнего сервиса кодирования
type fakeEncoder struct {
	mu        sync.Mutex
	submits   []encoder.SubmitInput
	submitErr error
	statuses  map[string]encoder.Status
	seq       int
}

func newFakeEncoder() *fakeEncoder {
	return &fakeEncoder{statuses: make(map[string]encoder.Status)}
}

func (f *fakeEncoder) SubmitCopy(_ context.Context, in encoder.SubmitInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.seq++
	id := fmt.Sprintf("enc-%04d", f.seq)
	f.submits = append(f.submits, in)
	f.statuses[id] = encoder.StatusProcessing
	return id, nil
}

func (f *fakeEncoder) QueryStatus(_ context.Context, remoteID string) (encoder.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[remoteID]
	if !ok {
		return "", &encoder.APIError{StatusCode: 404, Code: "not_found"}
	}
	return status, nil
}

func (f *fakeEncoder) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}
