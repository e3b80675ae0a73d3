package middleware

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

const maxDescriptionLen = 512

// 4-digit heading, then up to three 2-digit groups, optionally dotted: 8708, 8708.30, 870830, 8708.30.10
var hsCodePattern = regexp.MustCompile(`^\d{4}(\.?\d{2}){0,3}$`)

// ValidateHSCode checks the identifier looks like an HS / tariff code
func ValidateHSCode(code string) error {
	if code == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !hsCodePattern.MatchString(code) {
		return fmt.Errorf("invalid HS code format: %q (expected e.g. 8708 or 8708.30)", code)
	}
	return nil
}

// ValidateDescription limits free-text length
func ValidateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
	}
	return nil
}

// ValidateAnalysisID checks the id is a UUID
func ValidateAnalysisID(id string) error {
	if id == "" {
		return fmt.Errorf("analysis ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid analysis ID format")
	}
	return nil
}

// ValidateBatchSize rejects empty or oversized batches
func ValidateBatchSize(n, max int) error {
	if n == 0 {
		return fmt.Errorf("batch cannot be empty")
	}
	if max > 0 && n > max {
		return fmt.Errorf("batch too large: %d items (max %d)", n, max)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidatePage clamps page numbers to >= 1
func ValidatePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}
