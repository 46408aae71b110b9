package utils

import (
	"regexp"
	"strings"
)

// NormalizeModelText turns literal "\n" escapes from the model into newlines.
// With stripBackslashes every remaining backslash is removed as well, which
// also destroys legitimate ones (regexes, Windows paths, escaped quotes).
func NormalizeModelText(text string, stripBackslashes bool) string {
	text = strings.ReplaceAll(text, `\n`, "\n")
	if stripBackslashes {
		text = strings.ReplaceAll(text, `\`, "")
	}
	return text
}

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_.-]+`)

// DownloadFilename builds "<task>_result.txt": lowercased, spaces as
// underscores, anything unsafe in a header dropped.
func DownloadFilename(task string) string {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(task)), " ", "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	if name == "" {
		name = "result"
	}
	return name + "_result.txt"
}
