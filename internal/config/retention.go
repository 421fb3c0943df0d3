package config

import (
	"strconv"
	"strings"
	"time"
)

// ParseRetention parses "7d", "36h", "90m", "1h30m" or a bare number of days.
// Empty, negative or unparseable values yield 0, which disables retention.
func ParseRetention(retentionStr string) time.Duration {
	value := strings.TrimSpace(retentionStr)
	if value == "" {
		return 0
	}

	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return 0
		}
		return d
	}

	daysStr := strings.TrimSuffix(value, "d")
	days, err := strconv.Atoi(daysStr)
	if err != nil || days < 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}

// isZeroRetention distinguishes an explicit "keep everything" from garbage.
func isZeroRetention(retentionStr string) bool {
	value := strings.TrimSuffix(strings.TrimSpace(retentionStr), "d")
	if n, err := strconv.Atoi(value); err == nil {
		return n <= 0
	}
	d, err := time.ParseDuration(strings.TrimSpace(retentionStr))
	return err == nil && d <= 0
}
