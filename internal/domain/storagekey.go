package domain

import (
	"net/url"
	"strings"
)

// Ключи могут приходить как в percent-encoded, так и в декодированном виде.
// Перед любым сравнением или подписанием ключ сначала полностью
// декодируется, затем детерминированно кодируется заново.

const maxDecodePasses = 3

// DecodeStorageKey полностью декодирует percent-encoding в ключе
func DecodeStorageKey(raw string) string {
	s := raw
	for i := 0; i < maxDecodePasses; i++ {
		dec, err := url.PathUnescape(s)
		if err != nil || dec == s {
			break
		}
		s = dec
	}
	return s
}

// NormalizeStorageKey приводит ключ к каноническому виду:
// полное декодирование, затем повторное кодирование по сегментам пути
func NormalizeStorageKey(raw string) string {
	decoded := DecodeStorageKey(raw)
	parts := strings.Split(decoded, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
