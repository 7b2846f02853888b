package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeAnswer converts a stored correct answer to an option index.
// Authoring data carries answers in two forms: the literal option text or
// the option's numeric index (as an int string). Both are accepted here so
// every downstream comparison works on indexes only.
func NormalizeAnswer(raw string, options []string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("empty answer")
	}

	if idx, err := strconv.Atoi(trimmed); err == nil {
		if idx < 0 || idx >= len(options) {
			return 0, fmt.Errorf("answer index %d out of range [0,%d)", idx, len(options))
		}
		return idx, nil
	}

	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), trimmed) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("answer %q matches no option", raw)
}
