// Package util provides small, stateless utility functions shared across the
// application. Functions here have no dependencies on other internal packages.
package util

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"
)

// Slugify converts a user-supplied project name into a URL-safe slug.
// the slug doubles as the DNS subdomain and the root of container/image
// names, so the output must be a valid DNS label: lowercase ASCII letters,
// digits and single hyphens, never starting or ending with a hyphen.
//
//	"My Blog!"    -> "my-blog"
//	"  café 2024" -> "caf-2024"
//
// uniqueness is NOT guaranteed here; the caller checks the database and
// falls back to SlugWithSuffix on a collision.
func Slugify(name string) string {
	var builder strings.Builder
	previousWasHyphen := true // leading separators are dropped

	for _, char := range strings.ToLower(name) {
		switch {
		case char >= 'a' && char <= 'z' || unicode.IsDigit(char):
			builder.WriteRune(char)
			previousWasHyphen = false
		default:
			// every run of non-alphanumeric characters collapses into one hyphen
			if !previousWasHyphen {
				builder.WriteRune('-')
				previousWasHyphen = true
			}
		}
	}

	slug := strings.Trim(builder.String(), "-")

	// DNS labels are capped at 63 characters; trim before the cap so a
	// truncation never leaves a trailing hyphen.
	if len(slug) > 48 {
		slug = strings.Trim(slug[:48], "-")
	}

	if slug == "" {
		// name was entirely non-alphanumeric. fall back to a random label
		// rather than rejecting; the user sees the generated slug in the response.
		slug = fmt.Sprintf("project-%04x", rand.Uint32()&0xFFFF)
	}

	return slug
}

// SlugWithSuffix appends a 4-character random hex suffix to a slug.
// used when the plain slug is already taken by another project.
// 16 bits of entropy is plenty for a single-node deployment count.
// example: "my-blog" -> "my-blog-3f9a"
func SlugWithSuffix(slug string) string {
	return fmt.Sprintf("%s-%04x", slug, rand.Uint32()&0xFFFF)
}
