// Package subtitles finds caption files that sit next to a video and prepares
// them for playback.
//
// A caption belongs to a video when it lives in the same directory and its
// name starts with the video's basename: "lesson.vtt", "lesson.en.srt", or
// "lesson.pt-BR.forced.vtt". The first dot-separated token after the basename
// is read as a BCP 47 language tag; captions without one are "und". Labels come
// from golang.org/x/text/language/display. The configured default language
// sorts first, the rest follow by language code, and the first track carries
// the Default flag.
//
// SubRip files are converted to WebVTT on the fly by ToWebVTT.
package subtitles
