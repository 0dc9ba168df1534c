package scanner

import (
	"path"
	"regexp"
	"strings"

	"lectern/internal/config"
)

var (
	copyPrefixPattern = regexp.MustCompile(`(?i)^\s*(?:copy\s*(?:\(\d+\)\s*)?of\s+)+`)
	ordinalPattern    = regexp.MustCompile(`^\d+(?:\s*[._\-):\]]+\s*|\s+)`)
	separatorPattern  = regexp.MustCompile(`[_\-]+`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

var knownExtensions = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range [][]string{config.DefaultVideoExtensions, config.DefaultAudioExtensions, {".vtt", ".srt"}} {
		for _, ext := range list {
			set[ext] = struct{}{}
		}
	}
	return set
}()

// CleanFileName derives a display name from a media file name: the extension,
// "Copy of"/"Copy (n) of" prefixes, and one leading numeric ordinal are
// removed, underscores and dashes become spaces, and whitespace collapses. If
// nothing is left the raw name is returned.
//
//	CleanFileName("Copy (1) of 03_Intro_to_React.mp4") == "Intro to React"
func CleanFileName(name string) string {
	stem := name
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		if _, ok := knownExtensions[ext]; ok {
			stem = name[:len(name)-len(ext)]
		}
	}
	return cleanStem(stem, name)
}

func cleanStem(stem, raw string) string {
	cleaned := copyPrefixPattern.ReplaceAllString(stem, "")
	cleaned = ordinalPattern.ReplaceAllString(cleaned, "")
	cleaned = separatorPattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(spacePattern.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return raw
	}
	return cleaned
}
