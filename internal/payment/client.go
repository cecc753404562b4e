// Package payment предоставляет клиент платёжного шлюза для подтверждения и отмены платежей.
package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmeshcher/academy-store/internal/metrics"
)

const (
	defaultConfirmMessage = "토스페이먼츠 승인 실패"
	defaultCancelMessage  = "토스페이먼츠 환불 실패"
)

// ErrNotConfigured возвращается, если у клиента нет адреса или секретного ключа.
var ErrNotConfigured = errors.New("payment gateway not configured")

// Error описывает ошибку, которую вернул платёжный шлюз.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment gateway: %s (%s)", e.Message, e.Code)
	}
	return "payment gateway: " + e.Message
}

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// ConfirmRequest описывает запрос подтверждения платежа.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// Confirmation описывает успешный ответ на подтверждение.
type Confirmation struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Method     string `json:"method"`
	Status     string `json:"status"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient создаёт клиент шлюза по базовому адресу и секретному ключу.
// Запросы не повторяются автоматически.
func NewClient(baseURL, secretKey string, m *metrics.Metrics) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		metrics: m,
	}
}

// Confirm подтверждает платёж; при отказе шлюза возвращает *Error.
func (c *Client) Confirm(ctx context.Context, in ConfirmRequest) (*Confirmation, error) {
	var out Confirmation
	if err := c.post(ctx, "confirm", "/v1/payments/confirm", in, &out, defaultConfirmMessage); err != nil {
		return nil, err
	}
	if out.Method == "" {
		out.Method = "card"
	}
	return &out, nil
}

// Cancel отменяет ранее подтверждённый платёж; при отказе шлюза возвращает *Error.
func (c *Client) Cancel(ctx context.Context, paymentKey, reason string) error {
	path := "/v1/payments/" + url.PathEscape(paymentKey) + "/cancel"
	body := map[string]string{"cancelReason": reason}
	return c.post(ctx, "cancel", path, body, nil, defaultCancelMessage)
}

func (c *Client) post(ctx context.Context, op, path string, in, out any, fallback string) (err error) {
	if c == nil || c.baseURL == "" || c.secretKey == "" {
		return ErrNotConfigured
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.secretKey+":")))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	defer func() {
		c.observe(op, err, time.Since(start))
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := strings.TrimSpace(eb.Message)
		if msg == "" {
			msg = fallback
		}
		return &Error{StatusCode: resp.StatusCode, Code: eb.Code, Message: msg}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) observe(op string, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	var gwErr *Error
	switch {
	case errors.As(err, &gwErr):
		status = "rejected"
	case err != nil:
		status = "error"
	}
	c.metrics.GatewayRequests.WithLabelValues(op, status).Inc()
	c.metrics.GatewayLatency.WithLabelValues(op, status).Observe(d.Seconds())
}
