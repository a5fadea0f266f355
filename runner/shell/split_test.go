package shell

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		line string
		want []string
	}{
		{"echo A; echo B; echo C", []string{"echo A", "echo B", "echo C"}},
		{"echo hi", []string{"echo hi"}},
		{"  ;; echo hi ;  ", []string{"echo hi"}},
		{`echo "a;b"; echo c`, []string{`echo "a;b"`, "echo c"}},
		{`echo 'x; y' ; echo z`, []string{`echo 'x; y'`, "echo z"}},
		{`echo a\;b; echo c`, []string{`echo a\;b`, "echo c"}},
		{"true && echo ok; ls | wc -l", []string{"true && echo ok", "ls | wc -l"}},
		{"echo x 2>/dev/null; echo y > out", []string{"echo x 2>/dev/null", "echo y > out"}},
		{"echo $(date; uptime); echo done", []string{"echo $(date; uptime)", "echo done"}},
		{"echo héllo; echo wörld", []string{"echo héllo", "echo wörld"}},
		{"", nil},
	}
	for _, c := range cases {
		got, err := Split(c.line)
		if err != nil {
			t.Fatalf("Split(%q) failed: %v", c.line, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("Split(%q) = %q; expected %q", c.line, got, c.want)
		}
	}
}

func TestSplitUnbalancedQuote(t *testing.T) {
	if _, err := Split(`echo "unterminated; echo x`); err == nil {
		t.Fatalf("expected an error for an unterminated quote")
	}
}

func TestStatementsFallsBackToWholeLine(t *testing.T) {
	got, err := Statements(`echo "unterminated; echo x`, true)
	if err == nil {
		t.Fatalf("expected the tokenizing error to be reported")
	}
	if len(got) != 1 || got[0] != `echo "unterminated; echo x` {
		t.Fatalf("expected the whole line as one statement, got %q", got)
	}

	got, err = Statements("echo a; echo b", false)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected one statement without splitting, got %q, %v", got, err)
	}
	if got, _ := Statements("   ", true); got != nil {
		t.Fatalf("expected no statements for a blank line, got %q", got)
	}
}
