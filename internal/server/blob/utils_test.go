package blob

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{name: "empty", key: "", want: false},
		{name: "too long", key: strings.Repeat("a/", maxKeyLength), want: false},
		{name: "at limit", key: strings.Repeat("a", maxKeyLength), want: true},

		{name: "note", key: "daily.md", want: true},
		{name: "nested note", key: "notes/daily/2024-05-01.md", want: true},
		{name: "unicode", key: "notes/café ✅.md", want: true},
		{name: "spaces", key: "notes/a b.md", want: true},
		{name: "double dot in name", key: "notes/some..txt", want: true},
		{name: "ellipsis name", key: "notes/Draft... v2.md", want: true},
		{name: "trash folder", key: ".trash/old.md", want: true},

		{name: "dot", key: ".", want: false},
		{name: "dot dot", key: "..", want: false},
		{name: "parent segment", key: "notes/../secret.md", want: false},
		{name: "trailing parent", key: "notes/..", want: false},
		{name: "leading slash", key: "/notes/a.md", want: false},
		{name: "leading slashes", key: "//notes/a.md", want: false},
		{name: "backslashes", key: "notes\\a.md", want: false},
		{name: "nul byte", key: "notes/a\x00.md", want: false},
		{name: "invalid utf8", key: "notes/\xff.md", want: false},
		{name: "disk temp suffix", key: "notes/a.md" + diskTmpSuffix, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateKey(tt.key))
		})
	}
}
