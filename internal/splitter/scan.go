package splitter

import (
	"errors"
	"fmt"
	"strings"
)

var ErrSyntax = errors.New("python syntax error")

// logicalLine is one Python statement line: physical lines joined by open
// brackets, multi-line strings or backslash continuations.
type logicalLine struct {
	start, end int // 1-based physical lines; end is the line of the last token
	indent     int
	text       string // first physical line, trimmed
}

func indentWidth(line string) int {
	w := 0
	for _, c := range line {
		switch c {
		case ' ':
			w++
		case '\t':
			w = (w/8 + 1) * 8
		case '\f':
			w = 0
		default:
			return w
		}
	}
	return w
}

// scanLines splits source into logical lines, skipping blank and
// comment-only lines.
func scanLines(lines []string) ([]logicalLine, error) {
	var (
		out       []logicalLine
		cur       *logicalLine
		depth     int
		quote     string
		quoteLine int
	)
	for i, line := range lines {
		n := i + 1
		pos := 0
		if cur == nil {
			trimmed := strings.TrimLeft(line, " \t\f")
			if trimmed == "" || trimmed[0] == '#' {
				continue
			}
			cur = &logicalLine{start: n, end: n, indent: indentWidth(line), text: strings.TrimSpace(line)}
			pos = len(line) - len(trimmed)
		}

		continued := false
		escapedEOL := false
		for pos < len(line) {
			c := line[pos]
			if quote != "" {
				switch {
				case c == '\\':
					if pos == len(line)-1 {
						escapedEOL = true
					}
					pos += 2
				case strings.HasPrefix(line[pos:], quote):
					pos += len(quote)
					quote = ""
					cur.end = n
				default:
					pos++
				}
				continue
			}
			switch c {
			case '#':
				pos = len(line)
				continue
			case '\\':
				if pos == len(line)-1 {
					continued = true
				}
			case '"', '\'':
				quote = string(c)
				if triple := strings.Repeat(quote, 3); strings.HasPrefix(line[pos:], triple) {
					quote = triple
				}
				quoteLine = n
				pos += len(quote) - 1
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
				if depth < 0 {
					return nil, fmt.Errorf("%w: unmatched %q on line %d", ErrSyntax, c, n)
				}
			case ' ', '\t', '\f':
				pos++
				continue
			}
			cur.end = n
			pos++
		}

		if quote != "" {
			if len(quote) == 1 && !escapedEOL {
				return nil, fmt.Errorf("%w: unterminated string on line %d", ErrSyntax, quoteLine)
			}
			continue
		}
		if depth > 0 || continued {
			continue
		}
		out = append(out, *cur)
		cur = nil
	}
	if quote != "" {
		return nil, fmt.Errorf("%w: unterminated string starting on line %d", ErrSyntax, quoteLine)
	}
	if depth > 0 {
		return nil, fmt.Errorf("%w: unclosed bracket", ErrSyntax)
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}
