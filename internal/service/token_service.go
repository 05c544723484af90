package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"streamvault/internal/config"
	"streamvault/internal/domain"
	"streamvault/internal/metrics"
)

// Определение пользовательских ошибок
var (
	// ErrAssetNotReady возвращается для объектов, ещё не готовых к воспроизведению.
	// Отличается от "не найден": клиент должен повторить позже, а не сдаться.
	ErrAssetNotReady = errors.New("asset is not yet available for playback")
)

// PlaybackClaims представляет полезную нагрузку токена воспроизведения
type PlaybackClaims struct {
	KeyID       string   `json:"kid"`
	AccessRules []string `json:"access_rules,omitempty"`
	jwt.RegisteredClaims
}

// IssuedToken представляет выданный токен. Токены нигде не сохраняются:
// их валидность определяется подписью и сроком на стороне доставки.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenService выдает подписанные токены воспроизведения (RS256).
// Приватный ключ не покидает сервис выдачи.
type TokenService struct {
	store      AssetStore
	privateKey *rsa.PrivateKey
	keyID      string
	defaultTTL time.Duration
	maxTTL     time.Duration
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewTokenService загружает приватный ключ из PEM-файла.
// Ошибки ключа фатальны при старте, не ретраятся.
func NewTokenService(store AssetStore, cfg config.TokenConfig, logger *logrus.Logger, m *metrics.Metrics) (*TokenService, error) {
	pemData, err := os.ReadFile(cfg.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key file: %w", err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
	}

	return &TokenService{
		store:      store,
		privateKey: privateKey,
		keyID:      cfg.KeyID,
		defaultTTL: cfg.DefaultTTL,
		maxTTL:     cfg.MaxTTL,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}, nil
}

// IssueForAsset выдает токен воспроизведения для готового объекта.
// ttl <= 0 означает TTL по умолчанию; потолок ограничивает окно утечки.
func (s *TokenService) IssueForAsset(ctx context.Context, id uuid.UUID, ttl time.Duration) (*IssuedToken, error) {
	asset, err := s.store.GetByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			s.deny("not_found")
		}
		return nil, err
	}

	if asset.DeliveryStatus != domain.StatusRemoteReady || asset.RemoteEncodingID == nil {
		s.deny("not_ready")
		return nil, ErrAssetNotReady
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl > s.maxTTL {
		ttl = s.maxTTL
	}

	issuedAt := s.now()
	expiresAt := issuedAt.Add(ttl)

	claims := &PlaybackClaims{
		KeyID:       s.keyID,
		AccessRules: []string{"owner:" + asset.OwnerID},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   *asset.RemoteEncodingID,
			Audience:  jwt.ClaimStrings{"playback"},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign playback token: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TokensIssuedTotal.Inc()
	}
	s.logger.WithFields(logrus.Fields{
		"asset_uuid": asset.UUID,
		"remote_id":  *asset.RemoteEncodingID,
		"expires_at": expiresAt,
	}).Info("Playback token issued")

	return &IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

func (s *TokenService) deny(reason string) {
	if s.metrics != nil {
		s.metrics.TokensDeniedTotal.WithLabelValues(reason).Inc()
	}
}
