package worktree

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nonSlugRune = regexp.MustCompile(`[^a-z0-9]+`)

// maxSlugRunes bounds the generated slug so branch names stay reasonable
// even for very long ticket titles; truncation never splits a rune (B3).
const maxSlugRunes = 40

// maxSlugWords bounds how many dash-separated title words the slug keeps.
const maxSlugWords = 6

// titleCaser is kept for the rare case a caller wants a human-facing
// rendering of the same slug words (e.g. a diagnostic comment).
var titleCaser = cases.Title(language.English)

// GenerateBranchName builds a deterministic branch name from a ticket id
// and title: "<prefix>/<ticket-id>/<slug>". The slug lowercases the
// title, collapses runs of non-alphanumeric characters to a single dash,
// keeps the first maxSlugWords words, and truncates to maxSlugRunes runes
// without splitting a multi-byte rune or leaving a trailing dash.
func GenerateBranchName(prefix, ticketID, title string) string {
	slug := slugify(title)
	if prefix == "" {
		prefix = "ticket"
	}
	return fmt.Sprintf("%s/%s/%s", prefix, ticketID, slug)
}

func slugify(title string) string {
	lower := strings.ToLower(title)
	dashed := nonSlugRune.ReplaceAllString(lower, "-")
	dashed = strings.Trim(dashed, "-")
	if words := strings.Split(dashed, "-"); len(words) > maxSlugWords {
		dashed = strings.Join(words[:maxSlugWords], "-")
	}

	runes := []rune(dashed)
	if len(runes) > maxSlugRunes {
		runes = runes[:maxSlugRunes]
	}
	return strings.Trim(string(runes), "-")
}

// SanitizeBranchName strips conventional commit prefixes (feat/, fix/,
// chore/) a caller-supplied branch name might already carry, so it isn't
// doubled up when GenerateBranchName adds its own prefix.
func SanitizeBranchName(name string) string {
	for _, p := range []string{"feat/", "fix/", "chore/", "ticket/"} {
		if strings.HasPrefix(name, p) {
			return strings.TrimPrefix(name, p)
		}
	}
	return name
}
