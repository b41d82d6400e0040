package reportx

import (
	"bufio"
	"io"
	"strings"

	"github.com/imattdu/xtrace/errorx"
)

const maxLineSize = 1 << 20

// Scanner reads blank-line separated reports from a stream. Records that do
// not start with the report header are skipped and counted.
type Scanner struct {
	sc      *bufio.Scanner
	cur     *Report
	skipped int
	err     error
}

func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Scanner{sc: sc}
}

// Scan advances to the next well-formed report.
func (s *Scanner) Scan() bool {
	s.cur = nil
	for {
		block, ok := s.nextBlock()
		if !ok {
			return false
		}
		r, err := Parse(block)
		if err != nil {
			s.skipped++
			continue
		}
		s.cur = r
		return true
	}
}

func (s *Scanner) nextBlock() (string, bool) {
	var b strings.Builder
	for s.sc.Scan() {
		line := strings.TrimRight(s.sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if b.Len() > 0 {
				return b.String(), true
			}
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := s.sc.Err(); err != nil {
		// a block cut short by a read error is not a report
		s.err = errorx.Wrap(err, errorx.ErrMalformedReport)
		return "", false
	}
	return b.String(), b.Len() > 0
}

func (s *Scanner) Report() *Report { return s.cur }

// Skipped is the number of malformed records passed over so far.
func (s *Scanner) Skipped() int { return s.skipped }

func (s *Scanner) Err() error { return s.err }

// ParseStream reads every well-formed report from r.
func ParseStream(r io.Reader) ([]*Report, error) {
	sc := NewScanner(r)
	var out []*Report
	for sc.Scan() {
		out = append(out, sc.Report())
	}
	return out, sc.Err()
}

// WriteStream writes reports separated by blank lines.
func WriteStream(w io.Writer, reports ...*Report) error {
	for _, r := range reports {
		if _, err := io.WriteString(w, r.String()+"\n"); err != nil {
			return errorx.Wrap(err, errorx.ErrMalformedReport)
		}
	}
	return nil
}
