package domain

import "time"

// DriftReport представляет результат сверки хранилища с таблицей записей.
// Отчёт всегда информационный: аудит никогда не изменяет состояние.
type DriftReport struct {
	// Ключи в хранилище без соответствующей записи
	OrphanedUploads []string `json:"orphaned_uploads"`
	// Записи, ключ которых отсутствует в хранилище
	DanglingRecords []string `json:"dangling_records"`

	// Полные счётчики: списки выше обрезаются при больших расхождениях
	OrphanedTotal int `json:"orphaned_total"`
	DanglingTotal int `json:"dangling_total"`

	ScannedObjects int `json:"scanned_objects"`
	ScannedRecords int `json:"scanned_records"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Clean сообщает, что расхождений не обнаружено
func (r *DriftReport) Clean() bool {
	return r.OrphanedTotal == 0 && r.DanglingTotal == 0
}
