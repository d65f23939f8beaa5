// Package captions parses caption files (WebVTT, and SRT which shares the
// same block layout) into timed cues.
package captions

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/jaki95/podsplit/internal/domain"
)

const arrow = "-->"

// ErrMalformedBlock is wrapped by every MalformedBlockError.
var ErrMalformedBlock = errors.New("malformed caption block")

// MalformedBlockError describes a caption block that was skipped.
type MalformedBlockError struct {
	Line   int // 1-based line of the timing line
	Timing string
	Reason string
}

func (e *MalformedBlockError) Error() string {
	return fmt.Sprintf("caption block at line %d (%q): %s", e.Line, e.Timing, e.Reason)
}

func (e *MalformedBlockError) Unwrap() error {
	return ErrMalformedBlock
}

var (
	// Inline markup such as <c>, </c>, <i> or karaoke timings <00:00:01.000>.
	markupTag   = regexp.MustCompile(`<[^>]*>`)
	wordTiming  = regexp.MustCompile(`<\d{2}:\d{2}:\d{2}\.\d{3}>`)
	multiSpaces = regexp.MustCompile(`\s{2,}`)
)

// Parse splits a caption body into cues in source order.
//
// A block starts at any line containing "-->" and its text is every
// following line, joined with single spaces, up to the next empty line, the
// next timing line or the end of input. Whitespace-only lines before the
// text are skipped and after it end the block. Blocks without text or with
// unreadable timings are skipped; the returned error joins one
// MalformedBlockError per skipped block and the cues from the valid blocks
// are returned alongside it.
//
// Auto-generated captions (recognised by inline word timings) repeat the
// previous cue's line at the top of every block. Those repeats are removed,
// and blocks left with nothing new are dropped without error.
func Parse(body string) ([]domain.Cue, error) {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")

	var blocks []block
	for i := 0; i < len(lines); i++ {
		timing := strings.TrimSpace(lines[i])
		if !strings.Contains(timing, arrow) {
			continue
		}
		b := block{line: i + 1, timing: timing}

		for i+1 < len(lines) {
			next := lines[i+1]
			if next == "" || strings.Contains(next, arrow) {
				break
			}
			if strings.TrimSpace(next) == "" && len(b.text) > 0 {
				break
			}
			i++
			b.text = append(b.text, next)
		}
		blocks = append(blocks, b)
	}

	rolling := false
	for _, b := range blocks {
		if b.hasWordTimings() {
			rolling = true
			break
		}
	}

	var (
		cues     []domain.Cue
		skipped  []error
		previous string
	)
	for _, b := range blocks {
		start, end, err := parseTiming(b.timing)
		if err != nil {
			skipped = append(skipped, &MalformedBlockError{Line: b.line, Timing: b.timing, Reason: err.Error()})
			continue
		}

		text := b.cleanLines()
		if len(text) == 0 {
			skipped = append(skipped, &MalformedBlockError{Line: b.line, Timing: b.timing, Reason: "no caption text"})
			continue
		}

		last := text[len(text)-1]
		if rolling {
			for len(text) > 0 && text[0] == previous {
				text = text[1:]
			}
		}
		previous = last
		if len(text) == 0 {
			continue
		}

		cues = append(cues, domain.Cue{Start: start, End: end, Text: strings.Join(text, " ")})
	}

	return cues, errors.Join(skipped...)
}

type block struct {
	line   int
	timing string
	text   []string
}

func (b block) hasWordTimings() bool {
	for _, line := range b.text {
		if wordTiming.MatchString(line) {
			return true
		}
	}
	return false
}

// cleanLines strips markup from every text line and drops the empty ones.
func (b block) cleanLines() []string {
	var out []string
	for _, line := range b.text {
		if cleaned := cleanText(line); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// ParseFile reads and parses a caption file.
func ParseFile(path string) ([]domain.Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open captions: %w", err)
	}
	defer f.Close()
	return ParseReader(f)
}

func ParseReader(r io.Reader) ([]domain.Cue, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read captions: %w", err)
	}
	return Parse(string(data))
}

// parseTiming reads "start --> end [settings]". Cue settings after the end
// timestamp are discarded.
func parseTiming(line string) (domain.Timestamp, domain.Timestamp, error) {
	left, right, _ := strings.Cut(line, arrow)

	start, err := domain.ParseTimestamp(lastField(left))
	if err != nil {
		return domain.Timestamp{}, domain.Timestamp{}, fmt.Errorf("start: %w", err)
	}

	endField, _, _ := strings.Cut(strings.TrimSpace(right), " ")
	end, err := domain.ParseTimestamp(endField)
	if err != nil {
		return domain.Timestamp{}, domain.Timestamp{}, fmt.Errorf("end: %w", err)
	}

	return start, end, nil
}

// lastField drops anything before the start timestamp, such as an SRT index
// that shares the line.
func lastField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func cleanText(s string) string {
	s = markupTag.ReplaceAllString(s, "")
	s = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&nbsp;", " ").Replace(s)
	return strings.TrimSpace(multiSpaces.ReplaceAllString(s, " "))
}
