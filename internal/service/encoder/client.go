package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Status описывает состояние удалённой копии
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

const maxResponseSize = 1 << 20 // 1MB

// APIError представляет ошибку API сервиса кодирования
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("encoder api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// Transient сообщает, можно ли повторить запрос на следующем запуске
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsTransient классифицирует ошибку отправки.
// Таймауты и сетевые сбои считаются временными: исход запроса неизвестен,
// повтор выполняется повторным отбором объекта на следующем запуске.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}

// SubmitInput описывает запрос на копирование объекта из подписанного URL
type SubmitInput struct {
	SourceURL      string            `json:"source_url"`
	ThumbnailURL   string            `json:"thumbnail_url,omitempty"`
	Passthrough    string            `json:"passthrough,omitempty"`
	PlaybackPolicy string            `json:"playback_policy"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client оборачивает REST API внешнего сервиса кодирования.
// Клиент сам не ретраит: он только классифицирует ошибки для вызывающего.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient создает нового клиента сервиса кодирования
func NewClient(conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if conf.APIURL == "" || conf.APIKey == "" {
		return nil, fmt.Errorf("missing required configuration: APIURL and APIKey are required")
	}

	timeout := conf.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    conf.APIURL,
		apiKey:     conf.APIKey,
	}, nil
}

// SubmitCopy отправляет запрос на создание удалённой копии.
// Вызывается не более одного раза на объект за попытку: это гарантирует
// вызывающий через условную запись remote_encoding_id.
func (c *Client) SubmitCopy(ctx context.Context, in SubmitInput) (string, error) {
	if in.SourceURL == "" {
		return "", fmt.Errorf("source URL is required")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/copies", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		return "", fmt.Errorf("encoder returned empty copy id")
	}

	return resp.ID, nil
}

// QueryStatus опрашивает состояние удалённой копии
func (c *Client) QueryStatus(ctx context.Context, remoteID string) (Status, error) {
	if remoteID == "" {
		return "", fmt.Errorf("remote id is required")
	}

	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/copies/"+remoteID, nil, &resp); err != nil {
		return "", err
	}

	switch Status(resp.Status) {
	case StatusProcessing, StatusReady, StatusError:
		return Status(resp.Status), nil
	default:
		return "", fmt.Errorf("encoder returned unknown status %q", resp.Status)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("encoder request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read encoder response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var parsed errorResponse
		if json.Unmarshal(data, &parsed) == nil {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode encoder response: %w", err)
		}
	}

	return nil
}
