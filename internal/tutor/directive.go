package tutor

import (
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
)

// The answer stream may end with a structured block
//
//	@@meta {"image_keyword": "Water Cycle diagram"}
//
// Older models emit "Image Keyword: Water Cycle diagram" instead, sometimes
// at the end of a sentence. Lines carrying either are removed from the text
// that is shown, spoken and stored.
const metaPrefix = "@@meta"

var (
	metaLine    = regexp.MustCompile(`^\s*@@meta\b\s*(.*)$`)
	keywordLine = regexp.MustCompile(`(?i)image\s*keyword\s*:\s*(.+)$`)
)

type metaBlock struct {
	ImageKeyword string `json:"image_keyword"`
}

// ExtractDirective removes directive lines from text and returns the
// cleaned text and the image keyword, if any.
func ExtractDirective(text string) (cleaned, keyword string) {
	kept, keyword := stripDirectives(strings.Split(text, "\n"))
	return strings.TrimSpace(strings.Join(kept, "\n")), keyword
}

func stripDirectives(lines []string) (kept []string, keyword string) {
	kept = make([]string, 0, len(lines))
	for _, line := range lines {
		if m := metaLine.FindStringSubmatch(line); m != nil {
			var meta metaBlock
			if err := sonic.UnmarshalString(strings.TrimSpace(m[1]), &meta); err == nil && strings.TrimSpace(meta.ImageKeyword) != "" {
				keyword = cleanKeyword(meta.ImageKeyword)
			}
			continue
		}
		if m := keywordLine.FindStringSubmatch(line); m != nil {
			keyword = cleanKeyword(m[1])
			continue
		}
		kept = append(kept, line)
	}
	return kept, keyword
}

func cleanKeyword(s string) string {
	return strings.Trim(strings.TrimSpace(s), `."'`)
}

// visibleText is the partial answer shown while streaming: completed
// directive lines are removed and an unfinished last line that may turn
// into a directive is held back.
func visibleText(buf string) string {
	var lines []string
	tail := buf
	if i := strings.LastIndexByte(buf, '\n'); i >= 0 {
		lines, _ = stripDirectives(strings.Split(buf[:i], "\n"))
		tail = buf[i+1:]
	}
	if !mayBeDirective(tail) {
		lines = append(lines, tail)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func mayBeDirective(partial string) bool {
	t := strings.ToLower(strings.TrimSpace(partial))
	if t == "" {
		return false
	}
	if strings.HasPrefix(t, "@@") || strings.HasPrefix(metaPrefix, t) {
		return true
	}
	compact := strings.ReplaceAll(t, " ", "")
	const kw = "imagekeyword"
	return strings.HasPrefix(kw, compact) || strings.Contains(compact, kw+":")
}
