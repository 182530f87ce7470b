package textutil

import (
	"errors"
	"strings"
)

// ErrTooManyEntries is returned when a map exceeds the caller's entry limit.
var ErrTooManyEntries = errors.New("textutil: too many entries")

// NormalizeStringMap trims keys and values and drops entries with empty keys. A positive limit
// caps the number of entries accepted before normalisation. Empty input yields nil.
func NormalizeStringMap(values map[string]string, limit int) (map[string]string, error) {
	if limit > 0 && len(values) > limit {
		return nil, ErrTooManyEntries
	}
	if len(values) == 0 {
		return nil, nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}
