package helpers

import (
	"errors"
	"strings"
)

func GetSplitPart(target string, separate string, index int) (string, error) {
	parts := strings.Split(target, separate)
	if index >= len(parts) {
		return "", errors.New("index out of range")
	}
	return parts[index], nil
}

// StripComment drops a trailing "# ..." comment and stray '%' characters from an env value
func StripComment(value string) string {
	if idx := strings.Index(value, "#"); idx >= 0 {
		value = value[:idx]
	}
	value = strings.ReplaceAll(value, "%", "")
	return strings.TrimSpace(value)
}
