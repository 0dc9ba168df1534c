package subtitles

import (
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"lectern/internal/config"
	"lectern/internal/logging"
)

// Undetermined is the language code for captions without a language token.
const Undetermined = "und"

// Caption formats.
const (
	FormatWebVTT = "vtt"
	FormatSubRip = "srt"
)

// Track is one caption file available for a video.
type Track struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Label    string `json:"label"`
	Format   string `json:"format"`
	Default  bool   `json:"default"`
}

// Resolver matches caption files to videos.
type Resolver struct {
	defaultLang string
	videoExts   map[string]struct{}
	logger      *slog.Logger
}

// NewResolver constructs a resolver that favours defaultLang.
func NewResolver(defaultLang string, logger *slog.Logger) *Resolver {
	r := &Resolver{
		defaultLang: normalizeCode(defaultLang),
		logger:      logging.NewComponentLogger(logger, "subtitles"),
	}
	return r.WithVideoExtensions(nil)
}

// WithVideoExtensions sets which sibling files count as videos. Captions named
// after a sibling video's stem belong to that video. Empty restores the
// defaults.
func (r *Resolver) WithVideoExtensions(exts []string) *Resolver {
	if len(exts) == 0 {
		exts = config.DefaultVideoExtensions
	}
	r.videoExts = make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		r.videoExts[ext] = struct{}{}
	}
	return r
}

// FindTracks lists caption tracks for the video at videoPath within fsys.
func FindTracks(fsys fs.FS, videoPath, defaultLang string) []Track {
	return NewResolver(defaultLang, nil).FindTracks(fsys, videoPath)
}

// FindTracks lists caption tracks for the video at videoPath within fsys. An
// unreadable directory yields no tracks.
func (r *Resolver) FindTracks(fsys fs.FS, videoPath string) []Track {
	videoPath = path.Clean(strings.TrimPrefix(videoPath, "/"))
	dir := path.Dir(videoPath)
	stem := strings.TrimSuffix(path.Base(videoPath), path.Ext(videoPath))
	if stem == "" {
		return nil
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		r.logger.Debug("caption directory unreadable",
			logging.String("dir", dir),
			logging.Error(err),
		)
		return nil
	}

	siblings := r.siblingStems(entries, stem)
	var tracks []Track
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		track, ok := matchTrack(entry.Name(), stem)
		if !ok || ownedBySibling(entry.Name(), siblings) {
			continue
		}
		track.Path = path.Join(dir, entry.Name())
		tracks = append(tracks, track)
	}
	r.order(tracks)
	return tracks
}

// siblingStems returns the stems of other videos in the directory that extend
// stem, such as "lesson.part1" for "lesson".
func (r *Resolver) siblingStems(entries []fs.DirEntry, stem string) []string {
	var stems []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := path.Ext(name)
		if _, ok := r.videoExts[strings.ToLower(ext)]; !ok {
			continue
		}
		if other := name[:len(name)-len(ext)]; strings.HasPrefix(other, stem+".") {
			stems = append(stems, other)
		}
	}
	return stems
}

func ownedBySibling(name string, siblings []string) bool {
	base := strings.TrimSuffix(name, path.Ext(name))
	for _, other := range siblings {
		if base == other || strings.HasPrefix(base, other+".") {
			return true
		}
	}
	return false
}

func (r *Resolver) order(tracks []Track) {
	slices.SortStableFunc(tracks, func(a, b Track) int {
		aDefault, bDefault := r.isDefault(a.Language), r.isDefault(b.Language)
		switch {
		case aDefault && !bDefault:
			return -1
		case bDefault && !aDefault:
			return 1
		}
		if c := strings.Compare(a.Language, b.Language); c != 0 {
			return c
		}
		return strings.Compare(a.Path, b.Path)
	})
	for i := range tracks {
		tracks[i].Default = i == 0
	}
}

func (r *Resolver) isDefault(code string) bool {
	if r.defaultLang == "" || code == Undetermined {
		return false
	}
	if code == r.defaultLang {
		return true
	}
	return baseLanguage(code) == baseLanguage(r.defaultLang)
}

// matchTrack reports whether name is a caption for a video with the given
// stem and extracts its language.
func matchTrack(name, stem string) (Track, bool) {
	ext := strings.ToLower(path.Ext(name))
	var format string
	switch ext {
	case ".vtt":
		format = FormatWebVTT
	case ".srt":
		format = FormatSubRip
	default:
		return Track{}, false
	}
	base := name[:len(name)-len(ext)]
	if base == stem {
		return Track{Language: Undetermined, Label: labelFor(Undetermined, nil), Format: format}, true
	}
	if !strings.HasPrefix(base, stem+".") {
		return Track{}, false
	}
	tokens := strings.Split(base[len(stem)+1:], ".")
	code := normalizeCode(tokens[0])
	if code == "" {
		code = Undetermined
	}
	return Track{Language: code, Label: labelFor(code, tokens[1:]), Format: format}, true
}

func labelFor(code string, flags []string) string {
	label := "Unknown"
	if code != Undetermined {
		label = code
		if tag, err := language.Parse(code); err == nil {
			if name := display.English.Tags().Name(tag); name != "" {
				label = name
			}
		}
	}
	var extra []string
	for _, flag := range flags {
		if flag = strings.TrimSpace(flag); flag != "" {
			extra = append(extra, strings.ToLower(flag))
		}
	}
	if len(extra) > 0 {
		label += " (" + strings.Join(extra, ", ") + ")"
	}
	return label
}

// normalizeCode canonicalises a language token, keeping unparseable tokens
// lowercased so they still group together.
func normalizeCode(token string) string {
	token = strings.TrimSpace(strings.ReplaceAll(token, "_", "-"))
	if token == "" {
		return ""
	}
	tag, err := language.Parse(token)
	if err != nil {
		return strings.ToLower(token)
	}
	return tag.String()
}

func baseLanguage(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, _ := tag.Base()
	return base.String()
}
