package management

import (
	"bytes"
	"strings"
)

// lineFramer splits the control stream into lines. An incomplete trailing
// fragment is kept until the rest of the line arrives.
type lineFramer struct {
	partial []byte
	maxLine int
}

func newLineFramer(maxLine int) *lineFramer {
	return &lineFramer{maxLine: maxLine}
}

// Feed appends data and returns every complete, non-empty line.
// Trailing carriage returns are removed. The second result is true when an
// over-long partial line had to be discarded.
func (f *lineFramer) Feed(data []byte) ([]string, bool) {
	f.partial = append(f.partial, data...)

	var lines []string
	for {
		i := bytes.IndexByte(f.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(f.partial[:i]), "\r")
		f.partial = f.partial[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}

	overflow := false
	if f.maxLine > 0 && len(f.partial) > f.maxLine {
		f.partial = nil
		overflow = true
	}
	if len(f.partial) == 0 {
		// Release the backing array once fully consumed.
		f.partial = nil
	}
	return lines, overflow
}

// Reset drops any buffered fragment.
func (f *lineFramer) Reset() {
	f.partial = nil
}

// Pending returns the number of buffered bytes.
func (f *lineFramer) Pending() int {
	return len(f.partial)
}
