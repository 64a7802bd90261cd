package blob

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxKeyLength = 1024

// leading slashes, backslashes, a ".." segment or a NUL byte
var forbiddenKeyPattern = regexp.MustCompile(`^/+|\\+|(^|/)\.\.(/|$)|\x00`)

// ValidateKey reports whether key can name a vault file in every backend.
// Keys are relative forward slash paths, at most 1024 bytes of valid UTF-8.
// Names ending in the disk backend's temp suffix are reserved.
func ValidateKey(key string) bool {
	if len(key) == 0 || len(key) > maxKeyLength {
		return false
	}
	if key == "." || key == ".." || strings.HasSuffix(key, diskTmpSuffix) {
		return false
	}
	if forbiddenKeyPattern.MatchString(key) {
		return false
	}
	return utf8.ValidString(key)
}
