package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.Contains(t, Short(), Version)
	assert.Contains(t, Detailed(), Revision)
	assert.Contains(t, Detailed(), "/")
	assert.True(t, strings.HasPrefix(UserAgent(), AppName+"/"))
}

func TestFillFromBuildInfo(t *testing.T) {
	origVersion, origRevision, origDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origDate
	})

	Version, Revision, BuildDate = devVersion, "HEAD", ""
	fillFromBuildInfo("v1.2.3", map[string]string{
		"vcs.revision": "0123456789abcdef",
		"vcs.modified": "true",
		"vcs.time":     "2025-01-02T03:04:05Z",
	})

	assert.Equal(t, "1.2.3", Version)
	assert.Equal(t, "0123456789ab-dirty", Revision)
	assert.Equal(t, "2025-01-02T03:04:05Z", BuildDate)
}

func TestFillFromBuildInfo_KeepsLdflags(t *testing.T) {
	origVersion, origRevision, origDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origDate
	})

	Version, Revision, BuildDate = "2.0.0", "abc123", "yesterday"
	fillFromBuildInfo("(devel)", map[string]string{"vcs.revision": "ffff"})

	assert.Equal(t, "2.0.0", Version)
	assert.Equal(t, "abc123", Revision)
	assert.Equal(t, "yesterday", BuildDate)
}
