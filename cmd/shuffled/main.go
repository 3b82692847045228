// Command shuffled compares two text files as a grid of whitespace
// delimited tokens, optionally tolerant of newlines, token order within a
// row, and row order. Grounded on
// original_source/judges/shuffled/{main.cpp,token.cpp,token.h}.
package main

import (
	"fmt"
	"os"
	"sort"
)

const (
	resOK    = 0
	resWrong = 1
	resError = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr, os.Stdout))
}

func run(args []string, stderr, stdout *os.File) int {
	if len(args) < 2 || len(args) > 3 {
		fmt.Fprint(stderr, "Wrong amount of arguments.")
		return resError
	}

	var ignoreNewlines, shuffledRows, shuffledItems bool
	file1, file2 := args[0], args[1]
	if len(args) == 3 {
		sw := args[0]
		if len(sw) <= 1 || sw[0] != '-' {
			fmt.Fprintf(stderr, "Wrong argument \"%s\".", sw)
			return resError
		}
		for _, ch := range sw[1:] {
			switch ch {
			case 'n':
				ignoreNewlines = true
			case 'r':
				shuffledRows = true
			case 'i':
				shuffledItems = true
			default:
				fmt.Fprintf(stderr, "Wrong argument \"%s\".", sw)
				return resError
			}
		}
		file1, file2 = args[1], args[2]
	}

	data1, err := loadRows(file1, ignoreNewlines)
	if err != nil {
		fmt.Fprint(stderr, err)
		return resError
	}
	data2, err := loadRows(file2, ignoreNewlines)
	if err != nil {
		fmt.Fprint(stderr, err)
		return resError
	}

	if shuffledItems {
		for _, row := range data1 {
			sort.Strings(row)
		}
		for _, row := range data2 {
			sort.Strings(row)
		}
	}
	if shuffledRows {
		sortRows(data1)
		sortRows(data2)
	}

	res := compare(data1, data2)
	if res == resOK {
		fmt.Fprintf(stdout, "%f", 1.0)
	} else {
		fmt.Fprintf(stdout, "%f", 0.0)
	}
	return res
}

// loadRows splits a file's content into rows of whitespace-delimited
// tokens. When ignoreNewlines is set, the whole file collapses into one
// row, matching CFile::skipWhitespace's "ignoreNewlines ? 0 : newlines".
func loadRows(path string, ignoreNewlines bool) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("File \"%s\" can not be open.", path)
	}

	var rows [][]string
	var row []string
	pos := 0
	n := len(data)

	flushRow := func() error {
		if len(row) == 0 {
			return fmt.Errorf("Error occured while reading file.")
		}
		rows = append(rows, row)
		row = nil
		return nil
	}

	for pos < n {
		newline := false
		for pos < n && isWhitespace(data[pos]) {
			if data[pos] == '\n' {
				newline = true
			}
			pos++
		}
		if newline && !ignoreNewlines {
			if err := flushRow(); err != nil {
				return nil, err
			}
			continue
		}
		if pos >= n {
			break
		}

		start := pos
		for pos < n && !isWhitespace(data[pos]) {
			pos++
		}
		row = append(row, string(data[start:pos]))
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows, nil
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

func sortRows(data [][]string) {
	sort.Slice(data, func(i, j int) bool { return compareRows(data[i], data[j]) < 0 })
}

func compareRows(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

func compare(data1, data2 [][]string) int {
	if len(data1) != len(data2) {
		return resWrong
	}
	for i := range data1 {
		if len(data1[i]) != len(data2[i]) {
			return resWrong
		}
		for j := range data1[i] {
			if data1[i][j] != data2[i][j] {
				return resWrong
			}
		}
	}
	return resOK
}
