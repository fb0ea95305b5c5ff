package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}

	// Allow alphanumeric, dash, underscore (max 64 chars)
	pattern := `^[a-zA-Z0-9_-]{1,64}$`
	matched, _ := regexp.MatchString(pattern, tenant)
	if !matched {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}

	return nil
}

// ValidateEntityID validates resource identifiers used in URL paths
func ValidateEntityID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	pattern := `^[a-zA-Z0-9_-]{1,128}$`
	matched, _ := regexp.MatchString(pattern, id)
	if !matched {
		return fmt.Errorf("invalid id format (alphanumeric, dash, underscore only, max 128 chars)")
	}

	return nil
}

// ValidateJobType checks if the job type is in the allowed list
func ValidateJobType(jobType string) error {
	allowed := map[string]bool{
		"analyze_inspection": true,
		"deep_analysis":      true,
		"tts_generation":     true,
		"generate_report":    true,
	}

	if !allowed[strings.ToLower(jobType)] {
		return fmt.Errorf("invalid job type: %s (allowed: analyze_inspection, deep_analysis, tts_generation, generate_report)", jobType)
	}
	return nil
}

// ValidateContentType restricts photo uploads to image types
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return nil // Optional field
	}
	allowed := map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/webp": true,
		"image/heic": true,
	}
	if !allowed[strings.ToLower(contentType)] {
		return fmt.Errorf("unsupported content type: %s", contentType)
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

// ValidatePage validates pagination page number
func ValidatePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}
