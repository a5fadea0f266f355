package shell

import (
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
)

// Split breaks a compound command line into its ';'-separated statements. Separators
// inside quotes, escapes or $(...) are not split on. Empty statements are dropped.
func Split(line string) ([]string, error) {
	rs := []rune(line)
	var out []string
	start, cur := 0, 0
	for cur < len(rs) {
		p := shellwords.NewParser()
		if _, err := p.Parse(string(rs[cur:])); err != nil {
			return nil, errors.Wrapf(err, "splitting %q", line)
		}
		if p.Position < 0 {
			break
		}
		// Position counts runes from where this parse started. The parser also stops
		// on '&', '|', '<' and '>', which are not statement boundaries.
		at := cur + p.Position
		if rs[at] == ';' {
			out = appendStatement(out, rs[start:at])
			start = at + 1
		}
		cur = at + 1
	}
	return appendStatement(out, rs[start:]), nil
}

func appendStatement(out []string, rs []rune) []string {
	if s := strings.TrimSpace(string(rs)); s != "" {
		out = append(out, s)
	}
	return out
}
