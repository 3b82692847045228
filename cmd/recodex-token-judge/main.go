// Command recodex-token-judge compares an expected and a produced text
// file token by token, with optional numeric tolerance, case folding, and
// shuffled-token matching. Grounded on
// original_source/judges/recodex_token_judge/recodex-token-judge.cpp.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recodex/worker/internal/judge"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		ignoreEmptyLines         bool
		allowComments            bool
		ignoreLineEnds           bool
		ignoreTrailingWhitespace bool
		caseInsensitive          bool
		numeric                  bool
		floatTolerance           float64
		shuffledTokens           bool
		shuffledLines            bool
		maxWindow                int
		logLimit                 int
	)

	exitCode := 2
	cmd := &cobra.Command{
		Use:           "recodex-token-judge <expected> <actual>",
		Short:         "Compare two text files token by token",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shuffledLines {
				return fmt.Errorf("shuffled-lines is not implemented")
			}

			expectedData, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read expected file: %w", err)
			}
			actualData, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read actual file: %w", err)
			}

			opts := judge.ReaderOptions{
				IgnoreEmptyLines:         ignoreEmptyLines,
				AllowComments:            allowComments,
				IgnoreLineEnds:           ignoreLineEnds,
				IgnoreTrailingWhitespace: ignoreTrailingWhitespace,
			}
			correctReader := judge.NewReader(expectedData, opts)
			resultReader := judge.NewReader(actualData, opts)

			tokenComparator := &judge.TokenComparator{
				IgnoreCase:     caseInsensitive,
				Numeric:        numeric,
				FloatTolerance: floatTolerance,
			}
			lineComparator := &judge.LineComparator{Token: tokenComparator, ShuffledTokens: shuffledTokens, MaxWindow: maxWindow}
			logger := judge.NewLogger(os.Stderr)
			logger.RestrictSize(logLimit)

			j := &judge.Judge{Correct: correctReader, Result: resultReader, Lines: lineComparator, Logger: logger}
			match := j.Compare()
			if flushErr := logger.Flush(); flushErr != nil {
				return flushErr
			}

			if match {
				fmt.Println("1.0")
				exitCode = 0
			} else {
				fmt.Println("0.0")
				exitCode = 1
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&ignoreEmptyLines, "ignore-empty-lines", false, "skip empty lines entirely")
	flags.BoolVar(&allowComments, "allow-comments", false, "skip lines starting with #")
	flags.BoolVar(&ignoreLineEnds, "ignore-line-ends", false, "treat newlines as regular whitespace")
	flags.BoolVar(&ignoreTrailingWhitespace, "ignore-trailing-whitespace", false, "ignore trailing whitespace at end of file")
	flags.BoolVar(&caseInsensitive, "case-insensitive", false, "compare tokens ignoring case")
	flags.BoolVar(&numeric, "numeric", false, "compare numeric tokens as numbers")
	flags.Float64Var(&floatTolerance, "float-tolerance", 0, "relative tolerance for float comparisons (0..0.9)")
	flags.BoolVar(&shuffledTokens, "shuffled-tokens", false, "allow tokens within a line to be reordered")
	flags.BoolVar(&shuffledLines, "shuffled-lines", false, "allow lines to be reordered (not implemented)")
	flags.IntVar(&maxWindow, "token-lcs-approx-max-window", 0, "diagonal band width for approximate token LCS (0 = exact)")
	flags.IntVar(&logLimit, "log-limit", 1<<20, "maximum bytes of diagnostic output")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return exitCode
}
