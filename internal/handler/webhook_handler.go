package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"streamvault/internal/domain"
	"streamvault/internal/metrics"
	"streamvault/internal/service"
)

const (
	signatureHeader = "X-Encoding-Signature"
	maxWebhookBody  = 1 << 20 // 1MB
)

// WebhookHandler принимает асинхронные уведомления сервиса кодирования.
// Подпись считается по сырым байтам тела и сравнивается за константное время.
type WebhookHandler struct {
	reconcile *service.ReconcileService
	secret    []byte
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

func NewWebhookHandler(reconcile *service.ReconcileService, secret string, logger *logrus.Logger, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{
		reconcile: reconcile,
		secret:    []byte(secret),
		logger:    logger,
		metrics:   m,
	}
}

// HandleEncodingStatus обрабатывает POST /webhooks/encoding-status
func (h *WebhookHandler) HandleEncodingStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(body, r.Header.Get(signatureHeader)) {
		// Отказ без изменения состояния; повторы — забота отправителя
		h.logger.WithFields(logrus.Fields{
			"remote_addr": r.RemoteAddr,
			"body_len":    len(body),
		}).Warn("Webhook signature verification failed")
		h.count("rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var notification domain.EncodingNotification
	if err := json.Unmarshal(body, &notification); err != nil || !notification.Valid() {
		h.count("invalid")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	outcome, err := h.reconcile.Apply(r.Context(), notification)
	if err != nil {
		h.logger.WithError(err).WithField("remote_id", notification.RemoteID).
			Error("Failed to apply encoding notification")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Любой валидный аутентифицированный запрос подтверждается 200,
	// включая повторы и неизвестные id: иначе отправитель будет ретраить
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": string(outcome)})
}

func (h *WebhookHandler) verifySignature(payload []byte, provided string) bool {
	if provided == "" {
		return false
	}

	// Декодируем hex и сравниваем сырые байты: регистр цифр подписи
	// на стороне отправителя не фиксирован
	sig, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(payload)

	return hmac.Equal(mac.Sum(nil), sig)
}

func (h *WebhookHandler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.WebhooksTotal.WithLabelValues(outcome).Inc()
	}
}
