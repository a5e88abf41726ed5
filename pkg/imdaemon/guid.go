package imdaemon

import (
	"fmt"
	"strings"
)

// CreateChatGUID composes the canonical chat GUID the daemon uses:
// "service;style;identifier", e.g. "iMessage;-;+15551234567".
func CreateChatGUID(service string, style ChatStyle, chatIdentifier string) string {
	return fmt.Sprintf("%s;%s;%s", service, style, chatIdentifier)
}

// ParseChatGUID splits a canonical chat GUID into its parts. It fails on
// strings that don't carry exactly two separators or an unknown style byte.
func ParseChatGUID(guid string) (service string, style ChatStyle, chatIdentifier string, err error) {
	parts := strings.SplitN(guid, ";", 3)
	if len(parts) != 3 || len(parts[1]) != 1 {
		return "", 0, "", fmt.Errorf("malformed chat GUID %q", guid)
	}
	style = ChatStyle(parts[1][0])
	if style != ChatStyleInstantMessage && style != ChatStyleGroup {
		return "", 0, "", fmt.Errorf("unknown chat style %q in GUID %q", parts[1], guid)
	}
	return parts[0], style, parts[2], nil
}

// MergedChatID strips the service/style prefix from a persistent chat
// identifier, returning everything after the last semicolon. Identifiers
// without a semicolon pass through unchanged.
func MergedChatID(persistentID string) string {
	if idx := strings.LastIndexByte(persistentID, ';'); idx >= 0 {
		return persistentID[idx+1:]
	}
	return persistentID
}

// IsPhoneNumber reports whether a handle looks like a dialable number. The
// daemon format is E.164 with a leading plus.
func IsPhoneNumber(handle string) bool {
	if len(handle) < 2 || handle[0] != '+' {
		return false
	}
	for _, r := range handle[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsEmail reports whether a handle looks like an email address.
func IsEmail(handle string) bool {
	at := strings.IndexByte(handle, '@')
	return at > 0 && at < len(handle)-1 && !strings.ContainsAny(handle, " ;")
}

// IsDowngradeableHandle reports whether a handle can plausibly be reached
// over SMS relay: phone numbers and email addresses only.
func IsDowngradeableHandle(handle string) bool {
	return IsPhoneNumber(handle) || IsEmail(handle)
}
