// Package validation содержит функции валидации входных данных.
package validation

import (
	"regexp"
	"strings"
)

var mobilePattern = regexp.MustCompile(`^01[016789]\d{7,8}$`)

// Digits оставляет в строке только цифры.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsMobilePhone проверяет, что номер (после удаления разделителей) является мобильным номером Кореи.
func IsMobilePhone(phone string) bool {
	return mobilePattern.MatchString(Digits(phone))
}

// ContactPhone оставляет в номере только цифры и дефисы.
func ContactPhone(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
