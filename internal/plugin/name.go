package plugin

import "strings"

// ParseName reduces a decorated package reference to its bare name:
// "@scope/name@1.2.0" becomes "@scope/name" and "name@1.2.0" becomes "name".
func ParseName(ref string) string {
	name, _ := SplitName(ref)
	return name
}

// SplitName separates the bare name from an optional version suffix.
func SplitName(ref string) (name, version string) {
	ref = strings.TrimSpace(ref)
	offset := 0
	if strings.HasPrefix(ref, "@") {
		offset = 1
	}
	idx := strings.Index(ref[offset:], "@")
	if idx < 0 {
		return ref, ""
	}
	idx += offset
	return ref[:idx], ref[idx+1:]
}

// ValidName reports whether name can be used as a directory under a plugin
// dir and as a cache key. Path traversal segments are rejected.
func ValidName(name string) bool {
	if name == "" || strings.ContainsAny(name, " \t\n\\") {
		return false
	}
	if strings.HasPrefix(name, "@") {
		scope, rest, ok := strings.Cut(name[1:], "/")
		return ok && scope != "" && rest != "" && !strings.Contains(rest, "/") && rest != "." && rest != ".."
	}
	return !strings.Contains(name, "/") && name != "." && name != ".."
}
