package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"streamvault/internal/domain"
	"streamvault/internal/service"
)

// AssetHandler обслуживает HTTP-операции над видеообъектами:
// инжест, выдачу токенов воспроизведения и операторские действия
type AssetHandler struct {
	assets    *service.AssetService
	tokens    *service.TokenService
	migration *service.MigrationService
	audit     *service.AuditService
	logger    *logrus.Logger
}

func NewAssetHandler(
	assets *service.AssetService,
	tokens *service.TokenService,
	migration *service.MigrationService,
	audit *service.AuditService,
	logger *logrus.Logger,
) *AssetHandler {
	return &AssetHandler{
		assets:    assets,
		tokens:    tokens,
		migration: migration,
		audit:     audit,
		logger:    logger,
	}
}

// IngestRequest представляет событие инжеста от внешнего загрузчика
type IngestRequest struct {
	StorageKey string `json:"storageKey"`
	OwnerID    string `json:"ownerId"`
}

// CreateAsset обрабатывает POST /v1/assets
func (h *AssetHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	asset, err := h.assets.CreateFromIngest(r.Context(), req.StorageKey, req.OwnerID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidIngest) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.WithError(err).Error("Failed to register video asset")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, asset)
}

// GetAsset обрабатывает GET /v1/assets/{uuid}
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r)
	if !ok {
		return
	}

	asset, err := h.assets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			http.Error(w, "asset not found", http.StatusNotFound)
			return
		}
		h.logger.WithError(err).Error("Failed to load video asset")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// GetPlaybackToken обрабатывает GET /v1/assets/{uuid}/playback-token.
// "Не готов" отличается от "не найден": клиенту следует повторить позже.
func (h *AssetHandler) GetPlaybackToken(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r)
	if !ok {
		return
	}

	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = parsed
	}

	token, err := h.tokens.IssueForAsset(r.Context(), id, ttl)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAssetNotFound):
			http.Error(w, "asset not found", http.StatusNotFound)
		case errors.Is(err, service.ErrAssetNotReady):
			http.Error(w, "asset is not yet available for playback", http.StatusConflict)
		default:
			h.logger.WithError(err).Error("Failed to issue playback token")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// GetRemoteStatus обрабатывает GET /v1/assets/{uuid}/remote-status
func (h *AssetHandler) GetRemoteStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r)
	if !ok {
		return
	}

	status, err := h.assets.RemoteStatus(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAssetNotFound):
			http.Error(w, "asset not found", http.StatusNotFound)
		case errors.Is(err, service.ErrAssetNotRemoted):
			http.Error(w, "asset has not been submitted yet", http.StatusConflict)
		default:
			h.logger.WithError(err).Error("Failed to query remote encoding status")
			http.Error(w, "failed to query remote status", http.StatusBadGateway)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// RetryMigration обрабатывает POST /v1/assets/{uuid}/retry
func (h *AssetHandler) RetryMigration(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r)
	if !ok {
		return
	}

	asset, err := h.assets.RetryFailed(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAssetNotFound):
			http.Error(w, "asset not found", http.StatusNotFound)
		case errors.Is(err, service.ErrAssetNotFailed):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.WithError(err).Error("Failed to reset failed migration")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// RunMigration обрабатывает POST /v1/migrate/run
func (h *AssetHandler) RunMigration(w http.ResponseWriter, r *http.Request) {
	summary, err := h.migration.Run(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Manual migration run failed")
		http.Error(w, "migration run failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// RunAudit обрабатывает POST /v1/audit/run
func (h *AssetHandler) RunAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.audit.Run(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Manual drift audit failed")
		http.Error(w, "audit run failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func parseUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		http.Error(w, "invalid asset uuid", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
