// Package splitter chunks Python source files around class and function
// definitions for embedding.
package splitter

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const DefaultMaxFileLines = 50

// Python splits files longer than MaxFileLines into one chunk per function
// and per contiguous class region. Chunks of nested definitions start with
// the headers of their enclosing classes. Module-level statements outside
// any definition are dropped from split files. Functions are never split
// further.
type Python struct {
	MaxFileLines int
}

var _ textsplitter.TextSplitter = (*Python)(nil)

type Option func(*Python)

func WithMaxFileLines(n int) Option {
	return func(p *Python) { p.MaxFileLines = n }
}

func NewPython(opts ...Option) *Python {
	p := &Python{MaxFileLines: DefaultMaxFileLines}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Python) SplitText(text string) ([]string, error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) <= p.MaxFileLines {
		return []string{text}, nil
	}

	logical, err := scanLines(lines)
	if err != nil {
		return nil, err
	}
	var segs []*segment
	collect(logical, nil, &segs)

	var out []string
	for _, s := range segs {
		for _, chunk := range s.code(lines) {
			out = append(out, strings.TrimSpace(chunk))
		}
	}
	return out, nil
}

type segment struct {
	class       bool
	first, last int // 1-based, inclusive
	parent      *segment
	owned       [][2]int
}

// recordChild removes the lines of a nested definition from the class's
// owned ranges.
func (s *segment) recordChild(start, end int) {
	for i, r := range s.owned {
		if r[0] > start || start > r[1] {
			continue
		}
		s.owned = append(s.owned[:i:i], s.owned[i+1:]...)
		if start-1 > r[0] {
			s.owned = append(s.owned, [2]int{r[0], start - 1})
		}
		if end+1 < r[1] {
			s.owned = append(s.owned, [2]int{end + 1, r[1]})
		}
		return
	}
}

// header is the chain of class header lines from the outermost class down
// to s.
func (s *segment) header(lines []string) string {
	line := lines[s.first-1]
	if s.parent != nil {
		return s.parent.header(lines) + "\n" + line
	}
	return line
}

func (s *segment) code(lines []string) []string {
	if !s.class {
		code := strings.Join(lines[s.first-1:s.last], "\n")
		if s.parent != nil {
			return []string{s.parent.header(lines) + "\n" + code}
		}
		return []string{code}
	}

	var out []string
	for _, r := range s.owned {
		code := strings.Join(lines[r[0]-1:r[1]], "\n")
		if strings.TrimSpace(code) == "" {
			continue
		}
		switch {
		case r[0] != s.first:
			out = append(out, s.header(lines)+"\n"+code)
		case s.parent != nil:
			out = append(out, s.parent.header(lines)+"\n"+code)
		default:
			out = append(out, code)
		}
	}
	return out
}

func definition(text string) (class, ok bool) {
	switch {
	case strings.HasPrefix(text, "class ") || strings.HasPrefix(text, "class\t"):
		return true, true
	case strings.HasPrefix(text, "def ") || strings.HasPrefix(text, "def\t"):
		return false, true
	case strings.HasPrefix(text, "async "):
		return definition(strings.TrimLeft(text[len("async "):], " \t"))
	}
	return false, false
}

// collect records definitions in source order. Class bodies are searched for
// nested definitions, function bodies are not.
func collect(lines []logicalLine, parent *segment, segs *[]*segment) {
	for j := 0; j < len(lines); {
		k := j
		for k < len(lines) && strings.HasPrefix(lines[k].text, "@") {
			k++
		}
		if k == len(lines) {
			return
		}
		class, ok := definition(lines[k].text)
		if !ok {
			j = k + 1
			continue
		}

		end := k + 1
		for end < len(lines) && lines[end].indent > lines[k].indent {
			end++
		}
		last := lines[k].end
		if end > k+1 {
			last = lines[end-1].end
		}

		if class {
			s := &segment{class: true, first: lines[k].start, last: last, parent: parent}
			s.owned = [][2]int{{s.first, last}}
			if parent != nil {
				parent.recordChild(s.first, last)
			}
			*segs = append(*segs, s)
			collect(lines[k+1:end], s, segs)
		} else {
			s := &segment{first: lines[j].start, last: last, parent: parent}
			if parent != nil {
				parent.recordChild(s.first, last)
			}
			*segs = append(*segs, s)
		}
		j = end
	}
}
