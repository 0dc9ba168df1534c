package subtitles

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var srtTiming = regexp.MustCompile(`^(\d{1,2}:\d{2}:\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}:\d{2}:\d{2})[,.](\d{1,3})(.*)$`)

// ToWebVTT copies a caption stream to w as WebVTT. WebVTT input passes through
// unchanged; anything else is treated as SubRip.
func ToWebVTT(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	head, _ := br.Peek(9)
	if strings.HasPrefix(strings.TrimPrefix(string(head), "\ufeff"), "WEBVTT") {
		_, err := io.Copy(w, br)
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("WEBVTT\n"); err != nil {
		return err
	}
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var block []string
	flush := func() error {
		cue := srtCue(block)
		block = block[:0]
		if len(cue) == 0 {
			return nil
		}
		if _, err := bw.WriteString("\n" + strings.Join(cue, "\n") + "\n"); err != nil {
			return err
		}
		return nil
	}

	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read subrip: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}
	return bw.Flush()
}

// srtCue rewrites one SubRip block as a WebVTT cue, dropping the numeric
// index. Blocks without a timing line are discarded.
func srtCue(block []string) []string {
	for i, line := range block {
		m := srtTiming.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		timing := fmt.Sprintf("%s.%s --> %s.%s%s", padHours(m[1]), padMillis(m[2]), padHours(m[3]), padMillis(m[4]), m[5])
		return append([]string{timing}, block[i+1:]...)
	}
	return nil
}

func padHours(hms string) string {
	if len(hms) == 7 {
		return "0" + hms
	}
	return hms
}

func padMillis(ms string) string {
	for len(ms) < 3 {
		ms += "0"
	}
	return ms
}
