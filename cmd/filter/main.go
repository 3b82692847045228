// Command filter strips C-like "// comment" sequences from a text file,
// including the rest of the line they start on. Grounded on
// original_source/judges/filter/{main.c,io.c}.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	var in io.Reader = os.Stdin
	var out io.Writer = os.Stdout

	if len(args) >= 1 {
		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(stderr, "Error: Input file \"%s\" can not be open.", args[0])
			return 1
		}
		defer f.Close()
		in = f
	}
	if len(args) >= 2 {
		f, err := os.Create(args[1])
		if err != nil {
			fmt.Fprintf(stderr, "Error: Output file \"%s\" can not be open.", args[1])
			return 1
		}
		defer f.Close()
		out = f
	}

	br := bufio.NewReaderSize(in, 65536)
	bw := bufio.NewWriterSize(out, 65536)
	if err := filterComment(br, bw); err != nil {
		fmt.Fprint(stderr, "Error occured while reading input file.")
		return 1
	}
	if err := bw.Flush(); err != nil {
		fmt.Fprint(stderr, "Error writing into file.")
		return 1
	}
	return 0
}

// filterComment mirrors filterComment's character-at-a-time state machine:
// a "//" not already inside a comment starts one that runs to end of line;
// if the comment took the whole line (nothing was printed since the last
// newline), the newline itself is swallowed too.
func filterComment(sin *bufio.Reader, sout *bufio.Writer) error {
	readByte := func() (int, error) {
		b, err := sin.ReadByte()
		if err != nil {
			return -1, nil
		}
		return int(b), nil
	}

	ch, _ := readByte()
	newline := true

	for {
		if ch == '/' {
			ch2, _ := readByte()
			if ch2 == '/' {
				ch, _ = readByte()
				for ch >= 0 && ch != '\n' {
					ch, _ = readByte()
				}
				if newline {
					ch, _ = readByte()
					continue
				}
			} else {
				sout.WriteByte('/')
				ch = ch2
			}
		}

		if ch < 0 {
			break
		}

		sout.WriteByte(byte(ch))
		newline = ch == '\n'
		ch, _ = readByte()
	}
	return nil
}
