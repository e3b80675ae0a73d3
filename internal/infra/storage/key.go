package storage

import (
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/hs-analyzer/internal/domain/analysis"
)

// FileName returns analysis_<code>_<YYYYMMDD_HHMMSS>_<id8>.json for a result.
func FileName(r *domain.Result) string {
	id := string(r.ID)
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("analysis_%s_%s_%s.json", safeCode(r.Request.Identifier), r.Timestamp.UTC().Format("20060102_150405"), id)
}

// ObjectKey groups result documents per HS code inside the bucket.
func ObjectKey(r *domain.Result) string {
	return fmt.Sprintf("analyses/%s/%s", safeCode(r.Request.Identifier), FileName(r))
}

func safeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, code)
}
