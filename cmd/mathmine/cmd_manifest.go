package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"mathmine/cmd/mathmine/ui"
	"mathmine/internal/logging"
	"mathmine/internal/manifest"
)

const defaultManifest = "requirements.txt"

var (
	lintStrict     bool
	lintWatch      bool
	fmtWrite       bool
	checkInstalled string
)

// manifestCmd groups the requirements manifest tools
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Lint, format and check the requirements manifest",
}

var manifestLintCmd = &cobra.Command{
	Use:   "lint [file]",
	Short: "Report grammar errors, conflicts and stdlib mistakes",
	Long: `Parses the manifest and reports:
  - lines that are not valid specifiers
  - the same package declared twice with conflicting constraints
  - standard-library modules declared as installable packages
  - requirements without any version constraint

--strict also reports informational findings. --watch re-lints on every
change until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runManifestLint,
}

var manifestFmtCmd = &cobra.Command{
	Use:   "fmt [file]",
	Short: "Print the manifest as bare specifiers, one per line",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runManifestFmt,
}

var manifestShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Show requirements and declared standard-library modules",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runManifestShow,
}

var manifestCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Check requirements against installed versions",
	Long: `Compares each requirement with a pip-freeze style listing of the
installed environment.

Example:
  pip freeze > installed.txt
  mathmine manifest check --installed installed.txt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runManifestCheck,
}

func init() {
	manifestLintCmd.Flags().BoolVar(&lintStrict, "strict", false, "Also report informational findings")
	manifestLintCmd.Flags().BoolVar(&lintWatch, "watch", false, "Re-lint whenever the file changes")
	manifestFmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "Rewrite the file in place")
	manifestCheckCmd.Flags().StringVar(&checkInstalled, "installed", "", "pip freeze output (required)")
	_ = manifestCheckCmd.MarkFlagRequired("installed")

	manifestCmd.AddCommand(manifestLintCmd)
	manifestCmd.AddCommand(manifestFmtCmd)
	manifestCmd.AddCommand(manifestShowCmd)
	manifestCmd.AddCommand(manifestCheckCmd)
}

func manifestPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultManifest
}

// parseManifest parses path, returning grammar errors separately so that
// callers can still work with the lines that parsed.
func parseManifest(path string) (*manifest.Manifest, []error, error) {
	m, err := manifest.ParseFile(path)
	if m == nil {
		return nil, nil, err
	}
	var lineErrs []error
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			lineErrs = merr.Errors
		} else {
			lineErrs = []error{err}
		}
	}
	return m, lineErrs, nil
}

func runManifestLint(cmd *cobra.Command, args []string) error {
	path := manifestPath(args)
	minSeverity := manifest.SeverityWarning
	if lintStrict {
		minSeverity = manifest.SeverityInfo
	}

	if lintWatch {
		out := cmd.OutOrStdout()
		return manifest.Watch(cmd.Context(), path, logging.For(logger, logging.CategoryManifest),
			func(m *manifest.Manifest, findings []manifest.Finding, err error) {
				fmt.Fprintln(out, styles.RenderDivider(60))
				var lineErrs []error
				var merr *multierror.Error
				switch {
				case errors.As(err, &merr):
					lineErrs = merr.Errors
				case err != nil:
					lineErrs = []error{err}
				}
				printLint(out, styles, path, lineErrs, manifest.Filter(findings, minSeverity))
			})
	}

	m, lineErrs, err := parseManifest(path)
	if err != nil {
		return err
	}
	findings := manifest.Filter(manifest.Lint(m), minSeverity)
	problems := printLint(cmd.OutOrStdout(), styles, path, lineErrs, findings)
	if problems > 0 {
		return fmt.Errorf("%s: %d problem(s)", path, problems)
	}
	return nil
}

// printLint writes grammar errors and findings and returns how many of
// them are errors.
func printLint(w io.Writer, s ui.Styles, path string, lineErrs []error, findings []manifest.Finding) int {
	problems := len(lineErrs)
	for _, err := range lineErrs {
		fmt.Fprintf(w, "%s %s: %v\n", s.Error.Render("error"), path, err)
	}
	for _, f := range findings {
		var label string
		switch f.Severity {
		case manifest.SeverityError:
			label = s.Error.Render(f.Severity.String())
			problems++
		case manifest.SeverityWarning:
			label = s.Warning.Render(f.Severity.String())
		default:
			label = s.Info.Render(f.Severity.String())
		}
		fmt.Fprintf(w, "%s %s:%d: %s %s\n", label, path, f.Line, f.Message, s.Muted.Render("["+f.Rule+"]"))
	}
	if problems == 0 && len(findings) == 0 {
		fmt.Fprintf(w, "%s %s\n", s.Success.Render("✓"), path)
	}
	return problems
}

func runManifestFmt(cmd *cobra.Command, args []string) error {
	path := manifestPath(args)
	m, lineErrs, err := parseManifest(path)
	if err != nil {
		return err
	}
	if len(lineErrs) > 0 {
		return fmt.Errorf("%s has %d invalid line(s); run manifest lint", path, len(lineErrs))
	}

	formatted := manifest.Format(m)
	if !fmtWrite {
		fmt.Fprint(cmd.OutOrStdout(), formatted)
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(formatted), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logger.Info("manifest formatted")
	return nil
}

func runManifestShow(cmd *cobra.Command, args []string) error {
	path := manifestPath(args)
	m, lineErrs, err := parseManifest(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	table := ui.NewTable(fmt.Sprintf("%s (%d requirements)", path, len(m.Requirements)),
		"Line", "Package", "Constraint", "Comment")
	for _, r := range m.Requirements {
		constraint := r.Comparator + r.Version
		if constraint == "" {
			constraint = styles.Muted.Render("any")
		}
		name := r.Name
		if len(r.Extras) > 0 {
			name += "[" + strings.Join(r.Extras, ",") + "]"
		}
		table.AddRow(fmt.Sprint(r.Line), name, constraint, r.Comment)
	}
	fmt.Fprint(out, table.View(styles))

	if len(m.StdlibModules) > 0 {
		names := make([]string, 0, len(m.StdlibModules))
		for _, mod := range m.StdlibModules {
			names = append(names, mod.Name)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, styles.Subtitle.Render("standard library (not installed)"))
		fmt.Fprintln(out, styles.Panel.Render(strings.Join(names, ", ")))
	}
	if len(lineErrs) > 0 {
		fmt.Fprintf(out, "\n%s %d line(s) could not be parsed\n", styles.Warning.Render("!"), len(lineErrs))
	}
	return nil
}

func runManifestCheck(cmd *cobra.Command, args []string) error {
	path := manifestPath(args)
	m, lineErrs, err := parseManifest(path)
	if err != nil {
		return err
	}
	if len(lineErrs) > 0 {
		logger.Warn("manifest has invalid lines; they are not checked")
	}
	installed, _, err := parseManifest(checkInstalled)
	if err != nil {
		return err
	}

	results := manifest.Check(m, installed)
	table := ui.NewTable("", "Package", "Required", "Installed", "Status", "Detail")
	failed := 0
	for _, res := range results {
		if res.Status == manifest.StatusViolated || res.Status == manifest.StatusMissing {
			failed++
		}
		table.AddRow(res.Requirement.Name, res.Requirement.Comparator+res.Requirement.Version,
			res.Installed, styles.Status(string(res.Status)), res.Detail)
	}
	fmt.Fprint(cmd.OutOrStdout(), table.View(styles))
	if failed > 0 {
		return fmt.Errorf("%d of %d requirements not satisfied", failed, len(results))
	}
	return nil
}
