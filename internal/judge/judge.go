package judge

import "strconv"

const (
	maxBufferLines = 100  // bounds line-level LCS matrix size
	maxBufferToks  = 1000 // bounds aggregated line-comparison cost
	maxBufferChars = 10000
)

const noIdx = -1

// lineLCSNode is one cell of the weighted line-level LCS DP matrix.
// Grounded on judge.hpp's LCSNode: score is a DP cost (lower is better,
// unlike the token-level LCS which maximizes length), since matching two
// unequal lines still costs their comparator's error score.
type lineLCSNode struct {
	comparisonResult uint32
	score            int64
	totalTokens      int
	dr, dc           int8
}

// diffRecord is one reconstructed diff entry: a line skipped from one side,
// or a pair of lines considered matched (possibly with token-level errors).
type diffRecord struct {
	correct, result int // noIdx if this side has no line
	match           bool
}

// Judge compares a correct and a produced text file line by line, using a
// line comparator for pairing and a logger for diagnostics. Grounded on
// judge.hpp's Judge<Reader,LineComparator>; only the ordered-lines
// algorithm is implemented — shuffled_lines is a rejected CLI flag per
// spec.md §4.11 and the source's own "Not implemented yet".
type Judge struct {
	Correct *Reader
	Result  *Reader
	Lines   *LineComparator
	Logger  *Logger

	correctLine *Line
	resultLine  *Line
	correctBuf  []*Line
	resultBuf   []*Line
}

func (j *Judge) readNextCorrectLine() {
	if len(j.correctBuf) > 0 {
		j.correctLine, j.correctBuf = j.correctBuf[0], j.correctBuf[1:]
		return
	}
	j.correctLine, _ = j.Correct.ReadLine()
}

func (j *Judge) readNextResultLine() {
	if len(j.resultBuf) > 0 {
		j.resultLine, j.resultBuf = j.resultBuf[0], j.resultBuf[1:]
		return
	}
	j.resultLine, _ = j.Result.ReadLine()
}

func (j *Judge) readNextLines() {
	j.readNextCorrectLine()
	j.readNextResultLine()
}

// skipMatchingLeadingLines consumes lines from both files while they keep
// matching exactly, stopping at the first mismatch or at end of file.
// Returns true if no compared pair mismatched; when one file ends first,
// lines of the other may remain unread.
func (j *Judge) skipMatchingLeadingLines() bool {
	for (!j.Correct.EOF() || len(j.correctBuf) > 0) && (!j.Result.EOF() || len(j.resultBuf) > 0) {
		j.readNextLines()
		if j.correctLine == nil && j.resultLine == nil {
			return true
		}
		if j.correctLine == nil || j.resultLine == nil {
			return false
		}
		if j.Lines.Compare(j.correctLine, j.resultLine) != 0 {
			return false
		}
	}
	return true
}

// fillBuffers tops up both line buffers up to the bounded amount of
// material the line-level LCS matrix is allowed to process at once.
func (j *Judge) fillBuffers() {
	if j.correctLine != nil {
		j.correctBuf = append([]*Line{j.correctLine}, j.correctBuf...)
		j.correctLine = nil
	}
	tokens, chars := 0, 0
	for _, l := range j.correctBuf {
		tokens += l.Size()
		chars += l.RawLen()
	}
	for !j.Correct.EOF() && len(j.correctBuf) < maxBufferLines && tokens < maxBufferToks && chars < maxBufferChars {
		l, ok := j.Correct.ReadLine()
		if !ok {
			break
		}
		j.correctBuf = append(j.correctBuf, l)
		tokens += l.Size()
		chars += l.RawLen()
	}

	if j.resultLine != nil {
		j.resultBuf = append([]*Line{j.resultLine}, j.resultBuf...)
		j.resultLine = nil
	}
	tokens, chars = 0, 0
	for _, l := range j.resultBuf {
		tokens += l.Size()
		chars += l.RawLen()
	}
	for !j.Result.EOF() && len(j.resultBuf) < maxBufferLines && tokens < maxBufferToks && chars < maxBufferChars {
		l, ok := j.Result.ReadLine()
		if !ok {
			break
		}
		j.resultBuf = append(j.resultBuf, l)
		tokens += l.Size()
		chars += l.RawLen()
	}
}

// computeLCSMatrix builds the weighted line-level DP matrix: moving "up"
// (skip a correct line) or "left" (skip a result line) costs that line's
// token count plus one; moving diagonally pairs the two lines at the
// comparator's error score. Lower total score wins.
func (j *Judge) computeLCSMatrix() []lineLCSNode {
	sizeC, sizeR := len(j.correctBuf), len(j.resultBuf)
	stride := sizeR + 1
	matrix := make([]lineLCSNode, (sizeC+1)*stride)

	for c := 0; c < sizeC; c++ {
		matrix[(c+1)*stride].score = matrix[c*stride].score + int64(j.correctBuf[c].Size()) + 1
		matrix[(c+1)*stride].dc = -1
	}
	for r := 0; r < sizeR; r++ {
		matrix[r+1].score = matrix[r].score + int64(j.resultBuf[r].Size()) + 1
		matrix[r+1].dr = -1
	}

	for c := 0; c < sizeC; c++ {
		for r := 0; r < sizeR; r++ {
			i := (c+1)*stride + (r + 1)
			cmp := j.Lines.Compare(j.correctBuf[c], j.resultBuf[r])
			matrix[i].comparisonResult = cmp
			matrix[i].totalTokens = j.correctBuf[c].Size() + j.resultBuf[r].Size()

			upperScore := matrix[c*stride+(r+1)].score + int64(j.correctBuf[c].Size()) + 1
			leftScore := matrix[(c+1)*stride+r].score + int64(j.resultBuf[r].Size()) + 1
			diagScore := matrix[c*stride+r].score + int64(cmp)

			switch {
			case diagScore <= leftScore && diagScore <= upperScore:
				matrix[i].dr, matrix[i].dc = -1, -1
				matrix[i].score = diagScore
			case leftScore <= upperScore:
				matrix[i].dr = -1
				matrix[i].score = leftScore
			default:
				matrix[i].dc = -1
				matrix[i].score = upperScore
			}
		}
	}
	return matrix
}

// collectDiffRecords walks the DP matrix backward, turning its back
// pointers into an ordered (reversed) list of diff entries, plus the
// indices of the last cleanly-matched line pair on each side.
func (j *Judge) collectDiffRecords(matrix []lineLCSNode) (diffs []diffRecord, lastCorrect, lastResult int) {
	sizeC, sizeR := len(j.correctBuf), len(j.resultBuf)
	stride := sizeR + 1
	lastCorrect, lastResult = noIdx, noIdx
	c, r := sizeC, sizeR

	for c > 0 || r > 0 {
		node := matrix[c*stride+r]
		switch {
		case node.dc == 0 || node.dr == 0 || node.comparisonResult != 0:
			d := diffRecord{correct: noIdx, result: noIdx}
			if node.dc != 0 {
				d.correct = c - 1
			}
			if node.dr != 0 {
				d.result = r - 1
			}
			d.match = node.dc != 0 && node.dr != 0 && 3*int(node.comparisonResult) < node.totalTokens
			diffs = append(diffs, d)
		default:
			if lastCorrect == noIdx {
				lastCorrect = c - 1
			}
			if lastResult == noIdx {
				lastResult = r - 1
			}
		}
		c += int(node.dc)
		r += int(node.dr)
	}
	return diffs, lastCorrect, lastResult
}

func (j *Judge) logImpairedCorrectLine(l *Line) {
	j.Logger.Error().Write("-" + strconv.Itoa(l.Number) + ": " + l.Raw + "\n")
}

func (j *Judge) logImpairedResultLine(l *Line) {
	j.Logger.Error().Write("+" + strconv.Itoa(l.Number) + ": " + l.Raw + "\n")
}

// processAndLogDiffs renders diffs (most recent first, as collected) in
// file order, re-running the line comparator in logging mode on matched-
// with-errors pairs, then drops every line the diff pass consumed from the
// buffers.
func (j *Judge) processAndLogDiffs(diffs []diffRecord, lastMatchedCorrect, lastMatchedResult int) {
	lastCorrect, lastResult := noIdx, noIdx

	for i := len(diffs) - 1; i >= 0; i-- {
		d := diffs[i]
		if d.match {
			j.Lines.CompareAndLog(j.correctBuf[d.correct], j.resultBuf[d.result], j.Logger)
			lastCorrect, lastResult = d.correct, d.result
		} else {
			if d.correct != noIdx {
				j.logImpairedCorrectLine(j.correctBuf[d.correct])
				lastCorrect = d.correct
			}
			if d.result != noIdx {
				j.logImpairedResultLine(j.resultBuf[d.result])
				lastResult = d.result
			}
		}
		if d.correct == len(j.correctBuf)-1 || d.result == len(j.resultBuf)-1 {
			break
		}
	}

	if lastMatchedCorrect != noIdx && (lastCorrect == noIdx || lastMatchedCorrect > lastCorrect) {
		lastCorrect = lastMatchedCorrect
	}
	if lastMatchedResult != noIdx && (lastResult == noIdx || lastMatchedResult > lastResult) {
		lastResult = lastMatchedResult
	}

	if lastCorrect != noIdx {
		j.correctBuf = j.correctBuf[lastCorrect+1:]
	}
	if lastResult != noIdx {
		j.resultBuf = j.resultBuf[lastResult+1:]
	}
}

func (j *Judge) logImpairedCorrectTrailing() bool {
	reported := false
	for !j.Correct.EOF() && !j.Logger.IsFull(SeverityError) {
		j.readNextCorrectLine()
		if j.correctLine != nil {
			j.logImpairedCorrectLine(j.correctLine)
			reported = true
		}
	}
	return reported
}

func (j *Judge) logImpairedResultTrailing() bool {
	reported := false
	for !j.Result.EOF() && !j.Logger.IsFull(SeverityError) {
		j.readNextResultLine()
		if j.resultLine != nil {
			j.logImpairedResultLine(j.resultLine)
			reported = true
		}
	}
	return reported
}

// Compare runs the ordered-lines judge algorithm, logging any mismatches
// to j.Logger, and reports whether the two files matched.
func (j *Judge) Compare() bool {
	matched := j.skipMatchingLeadingLines()
	if matched && j.Correct.EOF() && j.Result.EOF() {
		return true
	}

	if matched {
		c := j.logImpairedCorrectTrailing()
		r := j.logImpairedResultTrailing()
		return !c && !r
	}

	for !j.Logger.IsFull(SeverityError) {
		j.fillBuffers()

		if (j.Correct.EOF() && len(j.correctBuf) == 0) || (j.Result.EOF() && len(j.resultBuf) == 0) {
			j.logImpairedCorrectTrailing()
			j.logImpairedResultTrailing()
			break
		}

		matrix := j.computeLCSMatrix()
		diffs, lastMatchedCorrect, lastMatchedResult := j.collectDiffRecords(matrix)
		j.processAndLogDiffs(diffs, lastMatchedCorrect, lastMatchedResult)

		if j.Correct.EOF() && len(j.correctBuf) == 0 && j.Result.EOF() && len(j.resultBuf) == 0 {
			break
		}
	}
	return false
}
