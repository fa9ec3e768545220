package session

import (
	"crypto/sha256"
	"fmt"
	"path"
)

// Standard report property keys understood by the collector.
const (
	PropID         = "string_liveActivityId"
	PropTopic      = "string_liveActivityTopic"
	PropPushToken  = "ignore_liveActivityPushToken"
	PropExpiration = "date_liveActivityExpiration"
)

// PrivacyFilter masks report properties before they leave the process
// through an inspection channel (the websocket tap). The zero value is a
// no-op filter. Sinks that talk to the real collector never use it.
type PrivacyFilter struct {
	MaskTokens     bool
	MaskSessionIDs bool
	AllowedKinds   []string
	BlockedKinds   []string
}

// IsAllowed reports whether events for kind may be shown. When
// AllowedKinds is non-empty the kind must match one of its glob
// patterns, and it must not match any BlockedKinds pattern. An empty
// kind (unknown at the call site) is always allowed.
func (f *PrivacyFilter) IsAllowed(kind Kind) bool {
	if kind == "" {
		return true
	}
	if len(f.AllowedKinds) > 0 {
		allowed := false
		for _, pattern := range f.AllowedKinds {
			if matched, _ := path.Match(pattern, string(kind)); matched {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	for _, pattern := range f.BlockedKinds {
		if matched, _ := path.Match(pattern, string(kind)); matched {
			return false
		}
	}
	return true
}

// Apply returns a copy of props with sensitive values masked. The
// original bag is never modified.
func (f *PrivacyFilter) Apply(props Properties) Properties {
	masked := props.Clone()
	if masked == nil {
		return nil
	}
	if f.MaskTokens {
		if token, ok := masked[PropPushToken].(string); ok && token != "" {
			masked[PropPushToken] = shortHash(token)
		}
	}
	if id, ok := masked[PropID].(string); ok {
		masked[PropID] = f.MaskID(id)
	}
	return masked
}

// MaskID returns id, or its short hash when session ids are masked.
func (f *PrivacyFilter) MaskID(id string) string {
	if f.MaskSessionIDs && id != "" {
		return shortHash(id)
	}
	return id
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskTokens && !f.MaskSessionIDs &&
		len(f.AllowedKinds) == 0 && len(f.BlockedKinds) == 0
}

// shortHash returns a truncated SHA-256 hex digest for an opaque value.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
