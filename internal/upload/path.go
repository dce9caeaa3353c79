package upload

import "strings"

// PathIsValid reports whether an upload destination path is acceptable:
// no absolute root, no parent references, no empty component (§4.G,
// testable property 8). Grounded on the original's path_is_valid, which
// inspects path components rather than doing string matching on "..".
func PathIsValid(path string) bool {
	if path == "" {
		return false
	}
	if strings.HasPrefix(path, "/") {
		return false
	}
	for _, comp := range strings.Split(path, "/") {
		if comp == "" || comp == "." || comp == ".." {
			return false
		}
	}
	return true
}
