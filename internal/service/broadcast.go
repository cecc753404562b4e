package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mmeshcher/academy-store/internal/validation"
)

const maxBroadcastMessage = 1000

// Broadcast ставит в очередь рекламную рассылку и возвращает число получателей.
// Каждый получатель должен иметь действующее согласие на рассылку.
func (s *Service) Broadcast(ctx context.Context, actor Actor, recipients []string, message string) (int, error) {
	if !actor.IsAdmin() {
		return 0, ErrForbidden
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return 0, invalid("message", "required")
	}
	if utf8.RuneCountInString(message) > maxBroadcastMessage {
		return 0, invalid("message", fmt.Sprintf("must be at most %d characters", maxBroadcastMessage))
	}

	phones := normalizePhones(recipients)
	if len(phones) == 0 {
		return 0, invalid("recipients", "required")
	}

	consented, err := s.repo.ConsentedPhones(ctx, phones)
	if err != nil {
		return 0, err
	}
	var missing []string
	for _, p := range phones {
		if !consented[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return 0, invalid("recipients", fmt.Sprintf("no marketing consent: %s", strings.Join(missing, ", ")))
	}

	s.notifier.Broadcast(phones, message)
	return len(phones), nil
}

// RemoveConsent отзывает согласие на рассылку и возвращает число изменённых записей.
func (s *Service) RemoveConsent(ctx context.Context, actor Actor, phones []string) (int64, error) {
	if !actor.IsAdmin() {
		return 0, ErrForbidden
	}
	normalized := normalizePhones(phones)
	if len(normalized) == 0 {
		return 0, invalid("phones", "required")
	}
	return s.repo.RemoveConsent(ctx, normalized)
}

// normalizePhones оставляет цифры, отбрасывает пустые значения и повторы, сохраняя порядок.
func normalizePhones(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		p := validation.Digits(raw)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
