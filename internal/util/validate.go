package util

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether s looks like a deliverable email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}

// ContainsSuspicious flags values carrying HTML/script-like fragments
// before they reach any external system.
func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}
	for _, c := range badChars {
		if strings.Contains(strings.ToLower(s), c) {
			return true
		}
	}
	return false
}
