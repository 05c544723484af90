package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"streamvault/internal/domain"
	"streamvault/internal/metrics"
	"streamvault/internal/service/s3"
)

// maxFindings ограничивает размер списков в отчёте; счётчики считают дальше
const maxFindings = 1000

// AuditService сверяет листинг хранилища с таблицей записей.
// Только чтение: аудит никогда не изменяет состояние.
// Слияние идёт по нормализованным ключам: сторона базы читается
// постранично (записи хранят канонический ключ, порядок COLLATE "C"
// совпадает с порядком нормализованных форм), сторона хранилища
// собирается и сортируется, поскольку нормализация может менять
// относительный порядок сырых ключей листинга.
type AuditService struct {
	storage  s3.Storage
	store    AssetStore
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	pageSize int
}

func NewAuditService(storage s3.Storage, store AssetStore, logger *logrus.Logger, m *metrics.Metrics, pageSize int) *AuditService {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &AuditService{
		storage:  storage,
		store:    store,
		logger:   logger,
		metrics:  m,
		pageSize: pageSize,
	}
}

// Run выполняет одну сверку и возвращает отчёт о расхождениях
func (s *AuditService) Run(ctx context.Context) (*domain.DriftReport, error) {
	report := &domain.DriftReport{
		OrphanedUploads: []string{},
		DanglingRecords: []string{},
		StartedAt:       time.Now(),
	}

	objects := &storageCursor{storage: s.storage, pageSize: int32(s.pageSize)}
	records := &recordCursor{store: s.store, pageSize: s.pageSize}

	objKey, objOK, err := objects.next(ctx)
	if err != nil {
		return nil, err
	}
	recKey, recOK, err := records.next(ctx)
	if err != nil {
		return nil, err
	}

	// Классическое слияние двух отсортированных потоков:
	// расхождения это симметрическая разность нормализованных ключей
	for objOK && recOK {
		switch {
		case objKey == recKey:
			objKey, objOK, err = objects.next(ctx)
			if err != nil {
				return nil, err
			}
			recKey, recOK, err = records.next(ctx)
			if err != nil {
				return nil, err
			}
		case objKey < recKey:
			s.addOrphan(report, objKey)
			objKey, objOK, err = objects.next(ctx)
			if err != nil {
				return nil, err
			}
		default:
			s.addDangling(report, recKey)
			recKey, recOK, err = records.next(ctx)
			if err != nil {
				return nil, err
			}
		}
	}

	for objOK {
		s.addOrphan(report, objKey)
		objKey, objOK, err = objects.next(ctx)
		if err != nil {
			return nil, err
		}
	}

	for recOK {
		s.addDangling(report, recKey)
		recKey, recOK, err = records.next(ctx)
		if err != nil {
			return nil, err
		}
	}

	report.ScannedObjects = objects.scanned
	report.ScannedRecords = records.scanned
	report.FinishedAt = time.Now()

	s.logger.WithFields(logrus.Fields{
		"scanned_objects": report.ScannedObjects,
		"scanned_records": report.ScannedRecords,
		"orphaned":        report.OrphanedTotal,
		"dangling":        report.DanglingTotal,
	}).Info("Drift audit finished")

	return report, nil
}

func (s *AuditService) addOrphan(report *domain.DriftReport, key string) {
	report.OrphanedTotal++
	if len(report.OrphanedUploads) < maxFindings {
		report.OrphanedUploads = append(report.OrphanedUploads, key)
	}
	if s.metrics != nil {
		s.metrics.DriftFindingsTotal.WithLabelValues("orphaned_upload").Inc()
	}
}

func (s *AuditService) addDangling(report *domain.DriftReport, key string) {
	report.DanglingTotal++
	if len(report.DanglingRecords) < maxFindings {
		report.DanglingRecords = append(report.DanglingRecords, key)
	}
	if s.metrics != nil {
		s.metrics.DriftFindingsTotal.WithLabelValues("dangling_record").Inc()
	}
}

// storageCursor выдает нормализованные ключи листинга хранилища по одному.
// Листинг приходит в байтовом порядке сырых ключей, а нормализация может
// его инвертировать (декодированный "a b" кодируется в "a%20b", который
// сортируется после "a$b"). Смещение при этом не ограничено, поэтому
// ключи собираются целиком и сортируются по нормализованной форме:
// в памяти держатся только строки ключей, не объекты листинга.
type storageCursor struct {
	storage  s3.Storage
	pageSize int32
	keys     []string
	loaded   bool
	pos      int
	scanned  int
}

func (c *storageCursor) next(ctx context.Context) (string, bool, error) {
	if !c.loaded {
		if err := c.load(ctx); err != nil {
			return "", false, err
		}
	}

	if c.pos >= len(c.keys) {
		return "", false, nil
	}

	key := c.keys[c.pos]
	c.pos++
	c.scanned++
	return key, true, nil
}

func (c *storageCursor) load(ctx context.Context) error {
	var lastKey string
	for {
		page, err := c.storage.ListPage(ctx, lastKey, c.pageSize)
		if err != nil {
			return fmt.Errorf("failed to list storage page: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, obj := range page {
			c.keys = append(c.keys, domain.NormalizeStorageKey(obj.Key))
		}

		lastKey = page[len(page)-1].Key
		if len(page) < int(c.pageSize) {
			break
		}
	}

	sort.Strings(c.keys)
	c.loaded = true
	return nil
}

// recordCursor выдает нормализованные ключи таблицы записей по одному.
// Записи хранят канонический ключ с момента инжеста, поэтому порядок
// COLLATE "C" уже совпадает с порядком нормализованных форм
type recordCursor struct {
	store    AssetStore
	pageSize int
	buf      []string
	pos      int
	lastKey  string
	done     bool
	scanned  int
}

func (c *recordCursor) next(ctx context.Context) (string, bool, error) {
	for c.pos >= len(c.buf) {
		if c.done {
			return "", false, nil
		}
		page, err := c.store.ListStorageKeys(ctx, c.lastKey, c.pageSize)
		if err != nil {
			return "", false, fmt.Errorf("failed to list record keys: %w", err)
		}
		if len(page) == 0 {
			c.done = true
			return "", false, nil
		}
		c.buf = page
		c.pos = 0
		c.lastKey = page[len(page)-1]
		if len(page) < c.pageSize {
			c.done = true
		}
	}

	key := domain.NormalizeStorageKey(c.buf[c.pos])
	c.pos++
	c.scanned++
	return key, true, nil
}
