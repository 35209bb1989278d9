package retrieval

import (
	"bufio"
	"regexp"
	"strings"
)

var cueTag = regexp.MustCompile(`<[^>]+>`)

// ParseVTT flattens a WebVTT document into a single paragraph.
// Header, NOTE/STYLE/REGION blocks, cue timings and numeric cue ids are
// dropped; inline tags are stripped; consecutive repeated lines collapse.
func ParseVTT(content string) string {
	var (
		lines   []string
		last    string
		inBlock bool
	)
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			inBlock = false
			continue
		}
		if inBlock {
			continue
		}
		switch {
		case strings.HasPrefix(line, "WEBVTT"):
			inBlock = true
			continue
		case strings.HasPrefix(line, "NOTE"), line == "STYLE", line == "REGION":
			inBlock = true
			continue
		case strings.Contains(line, "-->"):
			continue
		case isDigits(line):
			continue
		}
		text := strings.TrimSpace(cueTag.ReplaceAllString(line, ""))
		text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&nbsp;", " ").Replace(text)
		if text == "" || text == last {
			continue
		}
		lines = append(lines, text)
		last = text
	}
	return strings.Join(lines, " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
