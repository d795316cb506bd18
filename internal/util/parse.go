package util

import (
	"strconv"
	"strings"
)

// ParseInt parses a string to an integer, returning defaultValue if parsing fails
func ParseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return val
	}
	return defaultValue
}

// ParsePagination reads limit/offset query values, clamping limit to 1..maxLimit
// and offset to >= 0.
func ParsePagination(limitStr, offsetStr string, defaultLimit, maxLimit int) (limit, offset int) {
	limit = ParseInt(limitStr, defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset = ParseInt(offsetStr, 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// SplitList splits a comma separated list, trimming blanks
func SplitList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
