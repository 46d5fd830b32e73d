// Package merge implements a line-based three-way merge.
//
// Both sides are diffed against the base with a Myers line diff. Base lines
// matched on both sides are sync points; the regions between sync points
// are resolved independently. A region changed on only one side takes that
// side, identical changes collapse, and divergent changes are materialized
// with conflict markers.
package merge

import (
	"bytes"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	markerLeft  = "<<<<<<<"
	markerBase  = "|||||||"
	markerSep   = "======="
	markerRight = ">>>>>>>"
)

// Labels name the three inputs in conflict markers.
type Labels struct {
	Base  string
	Left  string
	Right string
}

func (l Labels) withDefaults() Labels {
	if l.Base == "" {
		l.Base = "base"
	}
	if l.Left == "" {
		l.Left = "left"
	}
	if l.Right == "" {
		l.Right = "right"
	}
	return l
}

// Result is the merged content. Conflict is set when at least one region
// could not be resolved and was written with markers.
type Result struct {
	Content   []byte
	Conflict  bool
	Conflicts int
}

// Lines merges left and right, both derived from base.
func Lines(base, left, right []byte, labels Labels) Result {
	switch {
	case bytes.Equal(left, right):
		return Result{Content: clone(left)}
	case bytes.Equal(base, left):
		return Result{Content: clone(right)}
	case bytes.Equal(base, right):
		return Result{Content: clone(left)}
	}

	labels = labels.withDefaults()
	b, l, r := splitLines(base), splitLines(left), splitLines(right)
	matchL := matchBase(b, l)
	matchR := matchBase(b, r)

	var (
		out        bytes.Buffer
		res        Result
		i0, i1, i2 int
	)
	emit := func(bs, ls, rs []string) {
		switch {
		case equalLines(ls, rs):
			writeLines(&out, ls)
		case equalLines(bs, ls):
			writeLines(&out, rs)
		case equalLines(bs, rs):
			writeLines(&out, ls)
		default:
			res.Conflicts++
			writeConflict(&out, labels, bs, ls, rs)
		}
	}

	for {
		k := i0
		for k < len(b) && (matchL[k] < 0 || matchR[k] < 0) {
			k++
		}
		if k == len(b) {
			emit(b[i0:], l[i1:], r[i2:])
			break
		}
		if k == i0 && matchL[k] == i1 && matchR[k] == i2 {
			out.WriteString(b[k])
			i0, i1, i2 = i0+1, i1+1, i2+1
			continue
		}
		emit(b[i0:k], l[i1:matchL[k]], r[i2:matchR[k]])
		i0, i1, i2 = k, matchL[k], matchR[k]
	}

	res.Content = out.Bytes()
	res.Conflict = res.Conflicts > 0
	return res
}

// matchBase returns, for each base line, the index of the line it is paired
// with in other by a Myers line diff, or -1.
func matchBase(base, other []string) []int {
	match := make([]int, len(base))
	for i := range match {
		match[i] = -1
	}
	a, b, ok := encodeLines(base, other)
	if !ok {
		return match
	}

	dmp := diffmatchpatch.New()
	// No deadline: a timed-out diff would make merge results depend on
	// machine speed.
	dmp.DiffTimeout = 0
	i, j := 0, 0
	for _, d := range dmp.DiffMainRunes(a, b, false) {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for k := 0; k < n; k++ {
				match[i+k] = j + k
			}
			i += n
			j += n
		case diffmatchpatch.DiffDelete:
			i += n
		case diffmatchpatch.DiffInsert:
			j += n
		}
	}
	return match
}

// encodeLines maps every distinct line to one rune so the diff runs over
// lines. Surrogates are skipped to keep each rune valid in a string. It
// reports false when there are more distinct lines than runes.
func encodeLines(base, other []string) ([]rune, []rune, bool) {
	codes := make(map[string]rune, len(base))
	next := rune(1)
	encode := func(lines []string) ([]rune, bool) {
		out := make([]rune, len(lines))
		for i, line := range lines {
			c, ok := codes[line]
			if !ok {
				if next == surrogateMin {
					next = surrogateMax + 1
				}
				if next > utf8.MaxRune {
					return nil, false
				}
				c = next
				codes[line] = c
				next++
			}
			out[i] = c
		}
		return out, true
	}
	a, ok := encode(base)
	if !ok {
		return nil, nil, false
	}
	b, ok := encode(other)
	return a, b, ok
}

const (
	surrogateMin = 0xD800
	surrogateMax = 0xDFFF
)

// splitLines splits after each newline; a final line without one is kept.
func splitLines(data []byte) []string {
	var lines []string
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, string(data))
			break
		}
		lines = append(lines, string(data[:i+1]))
		data = data[i+1:]
	}
	return lines
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeLines(out *bytes.Buffer, lines []string) {
	for _, line := range lines {
		out.WriteString(line)
	}
}

// writeSection writes lines, terminating the last one so the next marker
// starts on its own line.
func writeSection(out *bytes.Buffer, lines []string) {
	writeLines(out, lines)
	if n := len(lines); n > 0 && lines[n-1][len(lines[n-1])-1] != '\n' {
		out.WriteByte('\n')
	}
}

func writeConflict(out *bytes.Buffer, labels Labels, base, left, right []string) {
	if out.Len() > 0 && out.Bytes()[out.Len()-1] != '\n' {
		out.WriteByte('\n')
	}
	out.WriteString(markerLeft + " " + labels.Left + "\n")
	writeSection(out, left)
	out.WriteString(markerBase + " " + labels.Base + "\n")
	writeSection(out, base)
	out.WriteString(markerSep + "\n")
	writeSection(out, right)
	out.WriteString(markerRight + " " + labels.Right + "\n")
}

// HasMarkers reports whether data contains a materialized conflict.
func HasMarkers(data []byte) bool {
	return bytes.HasPrefix(data, []byte(markerLeft+" ")) ||
		bytes.Contains(data, []byte("\n"+markerLeft+" "))
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

// Whole writes the three inputs as one conflict region, for clashes that
// have no line-level resolution such as a deletion against a modification.
func Whole(base, left, right []byte, labels Labels) Result {
	var out bytes.Buffer
	writeConflict(&out, labels.withDefaults(), splitLines(base), splitLines(left), splitLines(right))
	return Result{Content: out.Bytes(), Conflict: true, Conflicts: 1}
}
