package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "osf"

// CacheKey identifies a cached response.
type CacheKey struct {
	// Path is the request path, e.g. "/v2/registrations/fxehm/wikis/"
	Path string

	// QueryParams are the request query parameters (e.g. page=2)
	QueryParams url.Values

	// Scope separates responses fetched with different credentials.
	// It is hashed, never stored in clear text.
	Scope string
}

// ScopeForToken returns the cache scope for a bearer token. Anonymous
// requests share the empty scope.
func ScopeForToken(token string) string {
	if token == "" {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(token))
}

// PathPrefix returns the key prefix shared by all entries under path,
// whatever their query or scope.
func PathPrefix(path string) string {
	return KeyPrefix + ":" + strings.Trim(path, "/")
}

// String generates a deterministic key.
// Format: osf:path:query1=val1:query2=val2[:scope=hash]
//
// Example:
//
//	osf:v2/registrations/fxehm/wikis:page=2
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}
	if path := strings.Trim(k.Path, "/"); path != "" {
		parts = append(parts, path)
	}

	if len(k.QueryParams) > 0 {
		keys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			values := append([]string(nil), k.QueryParams[key]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(values, ",")))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}
