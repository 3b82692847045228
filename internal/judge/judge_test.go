package judge

import "testing"

func compareBytes(t *testing.T, expected, actual []byte, opts ReaderOptions, cmp *TokenComparator, shuffled bool, window int) bool {
	t.Helper()
	correct := NewReader(expected, opts)
	result := NewReader(actual, opts)
	lines := &LineComparator{Token: cmp, ShuffledTokens: shuffled, MaxWindow: window}
	logger := NewLogger(discardWriter{})
	j := &Judge{Correct: correct, Result: result, Lines: lines, Logger: logger}
	match := j.Compare()
	if err := logger.Flush(); err != nil {
		t.Fatalf("logger flush: %v", err)
	}
	return match
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// TestIdentity exercises spec.md §8 property 9: a file compared to itself
// matches regardless of flags.
func TestIdentity(t *testing.T) {
	data := []byte("hello world\nfoo bar baz\n1.0 2.0 3.0\n")
	cases := []struct {
		name string
		opts ReaderOptions
		cmp  *TokenComparator
	}{
		{"plain", ReaderOptions{}, &TokenComparator{}},
		{"ignore-empty-lines", ReaderOptions{IgnoreEmptyLines: true}, &TokenComparator{}},
		{"case-insensitive", ReaderOptions{}, &TokenComparator{IgnoreCase: true}},
		{"numeric", ReaderOptions{}, &TokenComparator{Numeric: true, FloatTolerance: 0.001}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !compareBytes(t, data, data, c.opts, c.cmp, false, 0) {
				t.Errorf("identical files did not match under %s", c.name)
			}
		})
	}
}

// TestNumericTolerance exercises spec.md §8 property 10.
func TestNumericTolerance(t *testing.T) {
	cmp := &TokenComparator{Numeric: true, FloatTolerance: 0.001}

	if !cmp.Compare("1.0", "1.0005") {
		t.Error("expected values within tolerance to compare equal")
	}
	if cmp.Compare("1.0", "1.01") {
		t.Error("expected values outside tolerance to compare unequal")
	}
}

// TestTokenJudgeNumericScenario mirrors spec.md §8 scenario S5.
func TestTokenJudgeNumericScenario(t *testing.T) {
	expected := []byte("1.0 2.0")
	actual := []byte("1.00001 1.99999")
	cmp := &TokenComparator{Numeric: true, FloatTolerance: 0.001}
	if !compareBytes(t, expected, actual, ReaderOptions{}, cmp, false, 0) {
		t.Error("expected S5 scenario to match within tolerance")
	}
}

// TestShuffledTokens exercises spec.md §8 property 11 and scenario S6:
// permuting tokens within a line doesn't change the result when
// shuffled-tokens is set.
func TestShuffledTokens(t *testing.T) {
	expected := []byte("a b c")
	actual := []byte("c a b")
	cmp := &TokenComparator{}

	if compareBytes(t, expected, actual, ReaderOptions{}, cmp, false, 0) {
		t.Error("expected ordered comparison of shuffled tokens to differ")
	}
	if !compareBytes(t, expected, actual, ReaderOptions{}, cmp, true, 0) {
		t.Error("expected shuffled-tokens comparison to match")
	}
}

func TestMismatch(t *testing.T) {
	expected := []byte("hello world\n")
	actual := []byte("hello there\n")
	if compareBytes(t, expected, actual, ReaderOptions{}, &TokenComparator{}, false, 0) {
		t.Error("expected differing files to not match")
	}
}
