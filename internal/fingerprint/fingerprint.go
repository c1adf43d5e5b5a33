package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/conorfennell/prepdeck/internal/domain"
)

// Normalize concatenates the entry's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them. Tags are sorted so their order does not matter.
// The id and review state are not part of the content.
func Normalize(e domain.Entry) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		p = strings.TrimSpace(p)
		return p
	}

	tags := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		tags = append(tags, normalizePart(t))
	}
	slices.Sort(tags)

	// Fields are joined with a newline and tags with a comma so that adjacent
	// values cannot run together.
	return strings.Join([]string{
		normalizePart(e.Category),
		normalizePart(e.Prompt),
		normalizePart(e.Answer),
		strings.Join(tags, ","),
		strconv.Itoa(e.Difficulty),
		normalizePart(e.Source),
	}, "\n")
}

// Of returns the SHA-256 of the normalized entry as a hex string.
func Of(e domain.Entry) string {
	sum := sha256.Sum256([]byte(Normalize(e)))
	return fmt.Sprintf("%x", sum)
}

// Same reports whether a and b carry the same content.
func Same(a, b domain.Entry) bool {
	return Of(a) == Of(b)
}
