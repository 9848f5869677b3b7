package service

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxUsernameLength = 24
	MaxTextLength     = 1000
	MaxSeedLength     = 64
)

var roomIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,32}$`)

// ValidateRoomID checks the room id charset and length.
func ValidateRoomID(roomID string) error {
	if !roomIDPattern.MatchString(roomID) {
		return validationError("invalid roomId")
	}
	return nil
}

// ValidateUsername checks a display name as it will be stored: the length
// bound applies after trimming and escaping.
func ValidateUsername(name string) error {
	if !utf8.ValidString(name) {
		return validationError("username must be 1-24 characters")
	}
	n := utf8.RuneCountInString(escape(name))
	if n == 0 || n > MaxUsernameLength {
		return validationError("username must be 1-24 characters")
	}
	return nil
}

// ValidateText checks a message body before escaping.
func ValidateText(text string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if !utf8.ValidString(text) || n == 0 || n > MaxTextLength {
		return validationError("message must be 1-1000 characters")
	}
	return nil
}

// ValidateSeed checks the optional avatar seed.
func ValidateSeed(seed string) error {
	if len(seed) > MaxSeedLength || !utf8.ValidString(seed) {
		return validationError("invalid seed")
	}
	return nil
}

// escape neutralises markup in user-provided text; clients render
// messages as HTML.
func escape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
