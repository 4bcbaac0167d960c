package osf

import (
	"fmt"
	"net/url"
	"strings"
)

// Resource kinds that carry wikis.
const (
	KindRegistrations = "registrations"
	KindNodes         = "nodes"
)

// ValidKind reports whether kind names a resource collection with wikis.
func ValidKind(kind string) bool {
	return kind == KindRegistrations || kind == KindNodes
}

// WikiListURL returns the API reference of one page of a wiki listing,
// relative to the API root.
func WikiListURL(kind, guid string, page int) string {
	return fmt.Sprintf("v2/%s/%s/wikis/?page=%d", kind, url.PathEscape(guid), page)
}

// FilesZipURL returns the reference of a project's osfstorage zip archive.
// With an empty filesBase it is relative to the API root.
func FilesZipURL(filesBase, guid string) string {
	ref := fmt.Sprintf("v1/resources/%s/providers/osfstorage/?zip=", url.PathEscape(guid))
	if filesBase == "" {
		return ref
	}
	return strings.TrimSuffix(filesBase, "/") + "/" + ref
}
