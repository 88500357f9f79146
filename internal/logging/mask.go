package logging

import (
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var sensitiveKeys = []string{
	"ssn",
	"social",
	"dob",
	"birth",
	"license",
	"passport",
	"token",
	"api_key",
	"password",
}

// IsSensitiveKey reports whether a field or question id carries personal data.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}

// MaskLast4 hides everything but the last four characters.
func MaskLast4(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskAnswers returns a copy of checkout answers safe to log. Values of
// sensitive questions are masked; sensitiveIDs marks extra question ids (for
// example every ssn-typed question) regardless of their name.
func MaskAnswers(answers map[string]string, sensitiveIDs map[string]bool) map[string]string {
	out := make(map[string]string, len(answers))
	for k, v := range answers {
		if sensitiveIDs[k] || IsSensitiveKey(k) {
			out[k] = MaskLast4(v)
			continue
		}
		out[k] = v
	}
	return out
}

// Answers is a zap field for masked answers, keys sorted.
func Answers(key string, answers map[string]string, sensitiveIDs map[string]bool) zap.Field {
	return zap.Object(key, maskedMap(MaskAnswers(answers, sensitiveIDs)))
}

type maskedMap map[string]string

func (m maskedMap) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.AddString(k, m[k])
	}
	return nil
}
