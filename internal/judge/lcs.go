package judge

// LCSLength computes the length of the longest common subsequence of two
// index ranges [0,n1) and [0,n2), using eq(i,j) as the equality test.
// Grounded on bpplib/algo/lcs.hpp's longest_common_subsequence_length,
// which keeps only the last DP row. maxWindow > 0 restricts each row to a
// diagonal band of that width (the "approximate LCS" mode); 0 means exact.
func LCSLength(n1, n2 int, eq func(i, j int) bool, maxWindow int) int {
	if n1 == 0 || n2 == 0 {
		return 0
	}
	// Keep the shorter sequence as the row dimension.
	rows, cols := n1, n2
	swap := func(i, j int) bool { return eq(i, j) }
	if n2 > n1 {
		rows, cols = n2, n1
		swap = func(i, j int) bool { return eq(j, i) }
	}

	row := make([]int, cols)
	for r := 0; r < rows; r++ {
		lastUpperLeft, lastLeft := 0, 0
		from, to := computeWindow(r, cols, maxWindow)
		for i := from; i < to; i++ {
			upper := row[i]
			if swap(r, i) {
				row[i] = lastUpperLeft + 1
			} else if lastLeft > upper {
				row[i] = lastLeft
			} else {
				row[i] = upper
			}
			lastLeft = row[i]
			lastUpperLeft = upper
		}
	}
	return row[cols-1]
}

// lcsNode is one cell of the full backtrace matrix used by lcsPairs.
type lcsNode struct {
	length       int
	match        bool
	fromC, fromR int // 1 if the optimal path came from decrementing c/r
}

// lcsPairs reconstructs one longest common subsequence as a list of
// (i,j) index pairs into sequence1/sequence2, grounded on
// bpplib/algo/lcs.hpp's longest_common_subsequence backtrace variant.
func lcsPairs(n1, n2 int, eq func(i, j int) bool, maxWindow int) [][2]int {
	if n1 == 0 || n2 == 0 {
		return nil
	}
	stride := n1 + 1
	matrix := make([]lcsNode, stride*(n2+1))
	at := func(c, r int) *lcsNode { return &matrix[r*stride+c] }
	for c := 1; c <= n1; c++ {
		at(c, 0).fromC = 1
	}
	for r := 1; r <= n2; r++ {
		at(0, r).fromR = 1
	}

	for r := 0; r < n2; r++ {
		from, to := computeWindow(r, n1, maxWindow)
		for c := from; c < to; c++ {
			match := eq(c, r)
			node := at(c+1, r+1)
			node.match = match
			if match {
				node.length = at(c, r).length + 1
				node.fromC, node.fromR = 1, 1
			} else {
				leftLen := at(c, r+1).length
				upperLen := at(c+1, r).length
				if leftLen >= upperLen {
					node.fromC = 1
					node.length = leftLen
				} else {
					node.fromR = 1
					node.length = upperLen
				}
			}
		}
	}

	var pairs [][2]int
	c, r := n1, n2
	for c > 0 && r > 0 {
		node := at(c, r)
		if node.match {
			pairs = append(pairs, [2]int{c - 1, r - 1})
		}
		if node.fromC+node.fromR > 0 {
			c -= node.fromC
			r -= node.fromR
		} else {
			if c >= r {
				c--
			}
			if c <= r {
				r--
			}
		}
	}
	for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}
	return pairs
}

// computeWindow mirrors bpp::_priv::computeWindow: a diagonal band of width
// maxWindow centered on row r, or the full row when maxWindow is 0.
func computeWindow(r, rowSize, maxWindow int) (int, int) {
	fromI, toI := 0, rowSize
	if maxWindow > 0 && maxWindow <= toI {
		half := maxWindow / 2
		if r >= half {
			fromI = r - half
		}
		candidate := r + half + 1
		if fromI+maxWindow > candidate {
			candidate = fromI + maxWindow
		}
		if candidate < toI {
			toI = candidate
		}
		if toI == rowSize {
			fromI = toI - maxWindow
		}
	}
	return fromI, toI
}
