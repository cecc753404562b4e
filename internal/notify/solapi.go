package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSolapiURL задаёт адрес пакетной отправки сообщений Solapi.
const DefaultSolapiURL = "https://api.solapi.com/messages/v4/send-many"

// ErrSolapiDisabled возвращается, если ключи Solapi не заданы.
var ErrSolapiDisabled = errors.New("solapi not configured")

// SolapiConfig задаёт ключи и отправителя.
type SolapiConfig struct {
	APIKey      string
	APISecret   string
	SenderPhone string
	PFID        string
	BrandName   string
	OptOutPhone string
}

// Solapi отправляет алимток и брендовые сообщения через Solapi.
type Solapi struct {
	cfg        SolapiConfig
	url        string
	httpClient *http.Client
	now        func() time.Time
	salt       func() string
}

type kakaoOptions struct {
	PFID       string            `json:"pfId"`
	TemplateID string            `json:"templateId,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
	BMS        *bmsOptions       `json:"bms,omitempty"`
}

type bmsOptions struct {
	Targeting      string `json:"targeting"`
	ChatBubbleType string `json:"chatBubbleType"`
}

type solapiMessage struct {
	To           string       `json:"to"`
	From         string       `json:"from"`
	Text         string       `json:"text,omitempty"`
	KakaoOptions kakaoOptions `json:"kakaoOptions"`
}

// NewSolapi создаёт клиент Solapi; пустой url означает DefaultSolapiURL.
func NewSolapi(cfg SolapiConfig, url string) *Solapi {
	if url == "" {
		url = DefaultSolapiURL
	}
	return &Solapi{
		cfg:        cfg,
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		salt:       func() string { return uuid.NewString() },
	}
}

// Configured сообщает, заданы ли ключи и отправитель.
func (s *Solapi) Configured() bool {
	return s != nil && s.cfg.APIKey != "" && s.cfg.APISecret != "" && s.cfg.SenderPhone != "" && s.cfg.PFID != ""
}

// SendAlimtalk отправляет шаблонное сообщение одному получателю.
func (s *Solapi) SendAlimtalk(ctx context.Context, to, templateID string, vars map[string]string) error {
	if !s.Configured() {
		return ErrSolapiDisabled
	}
	msg := solapiMessage{
		To:   digits(to),
		From: s.cfg.SenderPhone,
		KakaoOptions: kakaoOptions{
			PFID:       s.cfg.PFID,
			TemplateID: templateID,
			Variables:  vars,
		},
	}
	return s.send(ctx, []solapiMessage{msg})
}

// SendBrand отправляет рекламное брендовое сообщение списку получателей одним запросом.
func (s *Solapi) SendBrand(ctx context.Context, recipients []string, text string) error {
	if !s.Configured() {
		return ErrSolapiDisabled
	}
	if len(recipients) == 0 {
		return nil
	}

	full := BrandText(s.cfg.BrandName, text, s.cfg.OptOutPhone)
	msgs := make([]solapiMessage, 0, len(recipients))
	for _, r := range recipients {
		msgs = append(msgs, solapiMessage{
			To:   digits(r),
			From: s.cfg.SenderPhone,
			Text: full,
			KakaoOptions: kakaoOptions{
				PFID: s.cfg.PFID,
				BMS:  &bmsOptions{Targeting: "I", ChatBubbleType: "TEXT"},
			},
		})
	}
	return s.send(ctx, msgs)
}

// BrandText оформляет рекламный текст с пометкой и телефоном отказа от рассылки.
func BrandText(brand, text, optOut string) string {
	var b strings.Builder
	b.WriteString("(광고)")
	if brand != "" {
		b.WriteString(" " + brand)
	}
	b.WriteString("\n" + text)
	if optOut != "" {
		b.WriteString("\n\n무료수신거부 " + optOut)
	}
	return b.String()
}

// AuthHeader строит заголовок HMAC-SHA256 для указанного момента и соли.
func AuthHeader(apiKey, apiSecret string, at time.Time, salt string) string {
	date := at.UTC().Format("2006-01-02T15:04:05.000Z")
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(date + salt))
	return fmt.Sprintf("HMAC-SHA256 apiKey=%s, date=%s, salt=%s, signature=%s",
		apiKey, date, salt, hex.EncodeToString(mac.Sum(nil)))
}

func (s *Solapi) send(ctx context.Context, msgs []solapiMessage) error {
	payload, err := json.Marshal(map[string]any{"messages": msgs})
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", AuthHeader(s.cfg.APIKey, s.cfg.APISecret, s.now(), s.salt()))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("solapi %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
