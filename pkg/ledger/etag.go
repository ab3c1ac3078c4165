package ledger

import "strings"

// ETag renders v as a strong HTTP entity tag.
func ETag(v Version) string {
	return `"` + string(v) + `"`
}

// ParseETag extracts the version from an entity tag. Weak tags (W/"...")
// are rejected because conditional writes need byte-exact revisions.
func ParseETag(tag string) (Version, bool) {
	tag = strings.TrimSpace(tag)
	if len(tag) < 2 || tag[0] != '"' || tag[len(tag)-1] != '"' {
		return "", false
	}
	v := tag[1 : len(tag)-1]
	if v == "" || strings.ContainsRune(v, '"') {
		return "", false
	}
	return Version(v), true
}
