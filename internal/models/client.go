package models

import (
	"strings"
	"time"
)

// Permissions understood by the API
const (
	PermProfilesRead     = "profiles:read"
	PermProfilesWrite    = "profiles:write"
	PermChallengesRead   = "challenges:read"
	PermChallengesWrite  = "challenges:write"
	PermChallengesSettle = "challenges:settle"
	PermEngineUse        = "engine:use"
	PermEventsRead       = "events:read"
)

// ApiClient is a caller authenticated by API key
type ApiClient struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	ApiKey      string            `json:"-"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUsedAt  *time.Time        `json:"last_used_at,omitempty"`
	Permissions []string          `json:"permissions"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// HasPermission reports whether the client may perform required.
// "*" grants everything and "profiles:*" grants every profiles permission.
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}

	for _, perm := range c.Permissions {
		switch {
		case perm == "*", perm == required:
			return true
		case strings.HasSuffix(perm, ":*"):
			if strings.HasPrefix(required, strings.TrimSuffix(perm, "*")) {
				return true
			}
		}
	}
	return false
}

// MaskedApiKey returns the key prefix for logs
func (c *ApiClient) MaskedApiKey() string {
	return MaskKey(c.ApiKey)
}

// MaskKey keeps the first 8 characters of key
func MaskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}
