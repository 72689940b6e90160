package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"My Trip: 2024": "My_Trip__2024",
		"Trip 2024":     "Trip_2024",
		"a/b\\c":        "a_b_c",
		`<>:"|?*`:       "_______",
		"plain":         "plain",
		"":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeName(in), "input %q", in)
	}
}

func TestSanitizeName_NoInvalidCharacters(t *testing.T) {
	inputs := []string{"x y", " lead", "trail ", "日本 旅行", "a<b>c", "?*?", "tab\there"}
	for _, in := range inputs {
		out := SanitizeName(in)
		assert.Equal(t, out, SanitizeName(in), "deterministic for %q", in)
		assert.False(t, strings.ContainsAny(out, invalidChars), "%q -> %q", in, out)
	}
}

func TestCollectionDir(t *testing.T) {
	cases := map[string]struct {
		dir string
		ok  bool
	}{
		"Trip 2024": {"Trip_2024", true},
		"a.b":       {"a.b", true},
		"..":        {"..", false},
		".":         {".", false},
		"\t..\n":    {"..", false},
		".private":  {".private", false},
		"":          {"", false},
		"/..":       {"_..", true},
	}
	for in, want := range cases {
		dir, ok := CollectionDir(in)
		assert.Equal(t, want.dir, dir, "input %q", in)
		assert.Equal(t, want.ok, ok, "input %q", in)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Image, Classify("a.jpg"))
	assert.Equal(t, Image, Classify("A.JPEG"))
	assert.Equal(t, Image, Classify("dir/b.WebP"))
	assert.Equal(t, Video, Classify("clip.MP4"))
	assert.Equal(t, Video, Classify("clip.m4v"))
	assert.Equal(t, Unrecognized, Classify("notes.txt"))
	assert.Equal(t, Unrecognized, Classify("jpg"))
	assert.Equal(t, Unrecognized, Classify(""))
	assert.True(t, IsMedia("x.mkv"))
	assert.False(t, IsMedia("x.heic"))
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", MimeType("a.JPG"))
	assert.Equal(t, "video/quicktime", MimeType("b.mov"))
	assert.Equal(t, "application/octet-stream", MimeType("c.bin"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "image", Image.String())
	assert.Equal(t, "video", Video.String())
	assert.Equal(t, "unrecognized", Unrecognized.String())
}
