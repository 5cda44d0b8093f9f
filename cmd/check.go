// Copyright © 2024 The ELPS authors

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/luthersystems/sniffer/lint"
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	checkJSON     bool
	checkChecks   string
	checkListAll  bool
	checkExcludes []string
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [datapacks...]",
	Short: "Report likely mistakes in datapack functions",
	Long: `Report likely mistakes in datapack functions.

Each datapack is loaded on its own, so references are only resolved
against functions and tags of the same datapack. Malformed function files
and tags are reported first, followed by the findings of each check.
With no arguments the configured --datapack is checked. A path ending in
/... checks every datapack below it, directories holding a pack.mcmeta
and zip archives alike.

Exit codes:
  0  No problems found
  1  One or more errors or warnings were reported
  2  Bad invocation (unknown checks, unreadable paths)

To suppress a finding, add a comment on the line above the command:
  # nolint:unknown-function
  function other:pack/api
A "# nolint-function" comment before the first command applies to the
whole function.

Available checks (use --checks to select specific ones):
` + lint.AnalyzerDoc() + `
Examples:
  sniffer check mypack                      # Check one datapack
  sniffer check packs/...                   # Check every datapack below packs
  sniffer check --json mypack.zip           # Output findings as JSON
  sniffer check --checks=unreachable mypack # Run only specific checks
  sniffer check --exclude=vendor packs/...  # Skip datapacks below vendor`,
	Run: func(cmd *cobra.Command, args []string) {
		if checkListAll {
			for _, name := range lint.AnalyzerNames() {
				fmt.Println(name)
			}
			return
		}
		analyzers, err := selectAnalyzers(checkChecks)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sniffer check: %v\n", err)
			os.Exit(2)
		}
		if len(args) == 0 {
			if root := viper.GetString("datapack"); root != "" {
				args = []string{root}
			}
		}
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "sniffer check: no datapack given")
			os.Exit(2)
		}
		paths, err := expandArgs(args, checkExcludes)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		problems, err := runCheck(os.Stdout, os.Stderr, &lint.Linter{Analyzers: analyzers}, paths)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		if problems > 0 {
			os.Exit(1)
		}
	},
}

// selectAnalyzers returns the default analyzers named in the comma
// separated list, or all of them for an empty list.
func selectAnalyzers(list string) ([]*lint.Analyzer, error) {
	analyzers := lint.DefaultAnalyzers()
	if list == "" {
		return analyzers, nil
	}
	selected := make(map[string]bool)
	for _, name := range strings.Split(list, ",") {
		selected[strings.TrimSpace(name)] = true
	}
	var filtered []*lint.Analyzer
	for _, a := range analyzers {
		if selected[a.Name] {
			filtered = append(filtered, a)
			delete(selected, a.Name)
		}
	}
	for name := range selected {
		return nil, errors.Errorf("unknown check: %s", name)
	}
	return filtered, nil
}

// runCheck loads and checks each datapack. Findings go to stdout as JSON
// or to stderr as rendered diagnostics. It returns the number of load
// errors plus the number of errors and warnings found.
func runCheck(stdout, stderr io.Writer, l *lint.Linter, paths []string) (int, error) {
	problems := 0
	var all []lint.Diagnostic
	for _, root := range paths {
		if _, err := os.Stat(root); err != nil {
			return 0, errors.Wrap(err, "datapack")
		}
		lib := mcfunction.NewLibrary()
		if err := lib.Load(root); err != nil {
			diags := loadErrorDiagnostics(root, err)
			problems += len(diags)
			_ = newRenderer().RenderAll(stderr, diags)
		}
		diags, err := l.LintLibrary(lib)
		if err != nil {
			return 0, err
		}
		log.WithFields(log.Fields{
			"datapack":    root,
			"functions":   len(lib.IDs()),
			"diagnostics": len(diags),
		}).Debug("Datapack checked")
		all = append(all, diags...)
	}
	problems += lint.Count(all, lint.SeverityWarning)
	if len(all) == 0 {
		return problems, nil
	}
	if checkJSON {
		if err := lint.FormatJSON(stdout, all); err != nil {
			return 0, err
		}
	} else {
		renderLintDiagnostics(stderr, all)
	}
	return problems, nil
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkJSON, "json", false,
		"Output findings as JSON.")
	checkCmd.Flags().StringVar(&checkChecks, "checks", "",
		"Comma-separated list of checks to run (default: all).")
	checkCmd.Flags().BoolVar(&checkListAll, "list", false,
		"List available checks and exit.")
	checkCmd.Flags().StringArrayVar(&checkExcludes, "exclude", nil,
		"Pattern for datapacks to exclude (may be repeated).")
}
