package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		want     []string
		nsSwitch bool
	}{
		{"plain name", "report.txt", []string{"report.txt"}, false},
		{"empty", "", []string{""}, false},
		{"root", "/", []string{"", ""}, false},
		{"absolute", "/a/b", []string{"", "a", "b"}, false},
		{"trailing slash", "a/b/", []string{"a", "b", ""}, false},
		{"inbox", "//in", []string{"", "", "in"}, false},
		{"escaped slash", `a\/b`, []string{"a/b"}, false},
		{"escaped colon", `a\:b`, []string{"a:b"}, false},
		{"escaped backslash", `a\\b`, []string{`a\b`}, false},
		{"trailing backslash dropped", `ab\`, []string{"ab"}, false},
		{"user namespace", "user:", []string{"user", ""}, true},
		{"user share path", "bob@example.com:share/x", []string{"bob@example.com", "share", "x"}, true},
		{"utf8", "héllo/wörld", []string{"héllo", "wörld"}, false},
		{"escaped utf8", `\é`, []string{"é"}, false},
		{"four byte", "a😀b", []string{"a😀b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs, sw, err := Tokenize(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, segs)
			assert.Equal(t, tt.nsSwitch, sw)
		})
	}
}

func TestTokenizePlainNamesAreSingleSegments(t *testing.T) {
	for _, p := range []string{"a", "file.txt", "with space", "..", ".", "ünïcode", "x-y_z"} {
		segs, sw, err := Tokenize(p)
		require.NoError(t, err)
		assert.Equal(t, []string{p}, segs, p)
		assert.False(t, sw, p)
	}
}

func TestTokenizeMalformed(t *testing.T) {
	for _, p := range []string{
		"a/b:c",
		"a:b:c",
		"/:x",
		"ab\xc3",
		"ab\xe2\x82",
		"ab\xf0\x9f\x98",
		"\\\xc3",
	} {
		_, _, err := Tokenize(p)
		assert.ErrorIs(t, err, ErrMalformedPath, "%q", p)
	}
}

func TestEscapeNameRoundTrips(t *testing.T) {
	for _, name := range []string{"plain", "we/ird", "a:b", `back\slash`, `all/:\three`, "ünï/code"} {
		segs, sw, err := Tokenize(EscapeName(name))
		require.NoError(t, err, name)
		assert.Equal(t, []string{name}, segs, name)
		assert.False(t, sw, name)
	}
	assert.Equal(t, `we\/ird`, EscapeName("we/ird"))
}
