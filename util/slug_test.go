package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple name", "My Blog", "my-blog"},
		{"punctuation collapses", "My Blog!!!", "my-blog"},
		{"leading and trailing junk", "  --cool app--  ", "cool-app"},
		{"unicode stripped", "café 2024", "caf-2024"},
		{"consecutive separators", "a___b...c", "a-b-c"},
		{"already a slug", "my-blog-2", "my-blog-2"},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, Slugify(testCase.input))
		})
	}
}

func TestSlugifyEmptyInputFallsBack(t *testing.T) {
	slug := Slugify("!!!")
	require.True(t, strings.HasPrefix(slug, "project-"), "got %q", slug)
	assert.Len(t, slug, len("project-")+4)
}

func TestSlugifyCapsLength(t *testing.T) {
	slug := Slugify(strings.Repeat("very-long-name-", 10))
	assert.LessOrEqual(t, len(slug), 48)
	assert.False(t, strings.HasSuffix(slug, "-"), "truncation must not leave a trailing hyphen")
}

func TestSlugWithSuffix(t *testing.T) {
	suffixed := SlugWithSuffix("my-blog")
	require.True(t, strings.HasPrefix(suffixed, "my-blog-"))
	assert.Len(t, suffixed, len("my-blog-")+4)
}
