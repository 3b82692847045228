package judge

import (
	"math"
	"strconv"
	"strings"
)

// TokenComparator decides whether two tokens are equal, per
// comparator.hpp's TokenComparator: numeric comparison (int exact, float
// with relative tolerance) takes priority over string comparison when both
// tokens parse as numbers and Numeric is set.
type TokenComparator struct {
	IgnoreCase     bool
	Numeric        bool
	FloatTolerance float64
}

// Compare reports whether a and b are equal under the comparator's flags.
func (c *TokenComparator) Compare(a, b string) bool {
	if c.Numeric && len(a) < 32 && len(b) < 32 {
		if ia, err := strconv.ParseInt(a, 10, 64); err == nil {
			if ib, err := strconv.ParseInt(b, 10, 64); err == nil {
				return ia == ib
			}
		}
		if da, err := strconv.ParseFloat(a, 64); err == nil {
			if db, err := strconv.ParseFloat(b, 64); err == nil {
				denom := math.Abs(da + db)
				if denom == 0 {
					return da == db
				}
				return math.Abs(da-db)/denom <= c.FloatTolerance
			}
		}
	}
	if c.IgnoreCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// resultMax is the scale LineComparator results are rescaled to, matching
// the original's uint32_t result_t.
const resultMax = math.MaxUint32

// computeResult rescales an error/total ratio onto [0, resultMax], rounded
// half-to-even as spec.md's line comparator requires.
func computeResult(errors, total int) uint32 {
	if total <= 0 {
		return 0
	}
	res := float64(resultMax) * float64(errors) / float64(total)
	return uint32(math.RoundToEven(res))
}

// LineComparator scores two lines of tokens, in either ordered (positional)
// or shuffled (multiset) token mode. Grounded on comparator.hpp's
// LineComparator — note the source's constructor parameter is literally
// named shuffledTokens; "shuffled lines" (reordering entire lines, rejected
// per spec.md §4.11) is a distinct, unimplemented concept one level up, in
// Judge::compareUnordered.
type LineComparator struct {
	Token          *TokenComparator
	ShuffledTokens bool
	MaxWindow      int // token_lcs_approx_max_window; 0 = exact LCS
}

// Compare returns the rescaled token-level error between a and b: 0 means
// identical (under the configured flags), resultMax means entirely
// disjoint.
func (lc *LineComparator) Compare(a, b *Line) uint32 {
	if lc.ShuffledTokens {
		return lc.compareUnordered(a, b, nil)
	}
	return lc.compareOrdered(a, b, nil)
}

// CompareAndLog re-runs the comparison, writing one diagnostic message per
// mismatched token to logger at Error severity.
func (lc *LineComparator) CompareAndLog(a, b *Line, logger *Logger) uint32 {
	if lc.ShuffledTokens {
		return lc.compareUnordered(a, b, logger)
	}
	return lc.compareOrdered(a, b, logger)
}

func (lc *LineComparator) compareOrdered(a, b *Line, logger *Logger) uint32 {
	eq := func(i, j int) bool { return lc.Token.Compare(a.Tokens[i].Text, b.Tokens[j].Text) }
	lcs := LCSLength(len(a.Tokens), len(b.Tokens), eq, lc.MaxWindow)
	errors := len(a.Tokens) + len(b.Tokens) - 2*lcs

	if logger != nil {
		pairs := lcsPairs(len(a.Tokens), len(b.Tokens), eq, lc.MaxWindow)
		matchedA := make([]bool, len(a.Tokens))
		matchedB := make([]bool, len(b.Tokens))
		for _, p := range pairs {
			matchedA[p[0]] = true
			matchedB[p[1]] = true
		}
		lastLine := -1
		for i, t := range a.Tokens {
			if !matchedA[i] {
				logToken(logger, &lastLine, t.Line, t.Text, true)
			}
		}
		for i, t := range b.Tokens {
			if !matchedB[i] {
				logToken(logger, &lastLine, t.Line, t.Text, false)
			}
		}
	}

	return computeResult(errors, len(a.Tokens)+len(b.Tokens))
}

// compareUnordered compares the multiset of tokens on each line, ignoring
// order. Numeric tokens are bucketed separately by parsed value so that
// "1" and "1.0" only collide when they parse to the same bucket, matching
// comparator.hpp's separate string/int/double maps. The loop bound below
// is `i < line.size()` — the source's `for (i=0; line.size(); ++i)` omits
// the comparison against i entirely, almost certainly a typo for the
// intended bounded loop; implemented here in its clearly-intended form.
func (lc *LineComparator) compareUnordered(a, b *Line, logger *Logger) uint32 {
	strCounts := make(map[string]int)
	intCounts := make(map[int64]int)
	fltCounts := make(map[float64]int)

	bucket := func(tok string, delta int) {
		if lc.Token.Numeric {
			if iv, err := strconv.ParseInt(tok, 10, 64); err == nil {
				intCounts[iv] += delta
				return
			}
			if dv, err := strconv.ParseFloat(tok, 64); err == nil {
				fltCounts[dv] += delta
				return
			}
		}
		key := tok
		if lc.Token.IgnoreCase {
			key = strings.ToLower(tok)
		}
		strCounts[key] += delta
	}

	for i := 0; i < a.Size(); i++ {
		bucket(a.Tokens[i].Text, 1)
	}
	for i := 0; i < b.Size(); i++ {
		bucket(b.Tokens[i].Text, -1)
	}

	errors := 0
	for tok, n := range strCounts {
		if n != 0 {
			errors++
			if logger != nil {
				logMismatch(logger, b.Number, "token", tok, n)
			}
		}
	}
	if lc.Token.Numeric {
		for v, n := range intCounts {
			if n != 0 {
				errors++
				if logger != nil {
					logMismatch(logger, b.Number, "int", strconv.FormatInt(v, 10), n)
				}
			}
		}
		for v, n := range fltCounts {
			if n != 0 {
				errors++
				if logger != nil {
					logMismatch(logger, b.Number, "float", strconv.FormatFloat(v, 'g', -1, 64), n)
				}
			}
		}
	}

	return computeResult(errors, a.Size()+b.Size())
}

func logToken(logger *Logger, lastLine *int, line int, tok string, missing bool) {
	if *lastLine != line {
		logger.Error().Write(strconv.Itoa(line) + ": ")
		*lastLine = line
	} else {
		logger.Error().Write("\t")
	}
	if missing {
		logger.Error().Write("missing token '" + tok + "'\n")
	} else {
		logger.Error().Write("unexpected token '" + tok + "'\n")
	}
}

func logMismatch(logger *Logger, line int, caption, value string, diff int) {
	if diff < 0 {
		logger.Error().Write(strconv.Itoa(line) + ": unexpected " + caption + " '" + value + "'")
	} else {
		logger.Error().Write(strconv.Itoa(line) + ": missing " + caption + " '" + value + "'")
	}
	if diff < -1 || diff > 1 {
		n := diff
		if n < 0 {
			n = -n
		}
		logger.Warning().Write(" (" + strconv.Itoa(n) + "x)")
	}
	logger.Error().Write("\n")
}
