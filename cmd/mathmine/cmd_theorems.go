package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mathmine/cmd/mathmine/ui"
	"mathmine/internal/store"
)

var (
	theoremsRun    string
	theoremsPaper  string
	theoremsLimit  int
	theoremsOffset int
	theoremsJSON   bool
)

// theoremsCmd browses the dataset
var theoremsCmd = &cobra.Command{
	Use:   "theorems",
	Short: "Browse extracted theorems",
}

var theoremsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List theorems in insertion order",
	RunE:  runTheoremsList,
}

var theoremsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one theorem with its explanation",
	Args:  cobra.ExactArgs(1),
	RunE:  runTheoremsShow,
}

func init() {
	theoremsListCmd.Flags().StringVar(&theoremsRun, "run", "", "Only theorems of this extraction run")
	theoremsListCmd.Flags().StringVar(&theoremsPaper, "paper", "", "Only theorems of this paper link")
	theoremsListCmd.Flags().IntVar(&theoremsLimit, "limit", 20, "Maximum number of theorems")
	theoremsListCmd.Flags().IntVar(&theoremsOffset, "offset", 0, "Skip this many theorems")
	theoremsShowCmd.Flags().BoolVar(&theoremsJSON, "json", false, "Print the record as JSON")

	theoremsCmd.AddCommand(theoremsListCmd)
	theoremsCmd.AddCommand(theoremsShowCmd)
}

func runTheoremsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	theorems, err := st.ListTheorems(cmd.Context(), store.TheoremFilter{
		RunID:     theoremsRun,
		PaperLink: theoremsPaper,
		Limit:     theoremsLimit,
		Offset:    theoremsOffset,
	})
	if err != nil {
		return err
	}
	if len(theorems) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no theorems")
		return nil
	}

	table := ui.NewTable("", "ID", "Theorem", "Paper", "Statement")
	for _, t := range theorems {
		table.AddRow(fmt.Sprint(t.ID), displayName(t), t.PaperLink, shorten(strings.Join(strings.Fields(t.Content), " "), 60))
	}
	fmt.Fprint(cmd.OutOrStdout(), table.View(styles))
	return nil
}

func runTheoremsShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid theorem id %q", args[0])
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.GetTheorem(cmd.Context(), id)
	if err != nil {
		return err
	}
	if theoremsJSON {
		return writeJSON(cmd.OutOrStdout(), t)
	}

	out, err := ui.RenderMarkdown(styles, theoremMarkdown(t), 80)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// displayName is how the paper itself refers to the theorem.
func displayName(t store.Theorem) string {
	switch {
	case t.DisplayLabel != "":
		return t.DisplayLabel
	case t.Number != "" && t.Env != "":
		return strings.ToUpper(t.Env[:1]) + t.Env[1:] + " " + t.Number
	case t.Env != "":
		return t.Env
	default:
		return "theorem"
	}
}

func theoremMarkdown(t *store.Theorem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", displayName(*t))
	fmt.Fprintf(&b, "*%s*", t.PaperLink)
	if t.Label != "" {
		fmt.Fprintf(&b, " · `%s`", t.Label)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "```latex\n%s\n```\n\n", strings.TrimSpace(t.Content))
	if t.Explanation != "" {
		fmt.Fprintf(&b, "## Why the answer is unique\n\n%s\n\n", t.Explanation)
	}
	if t.Context != "" {
		fmt.Fprintf(&b, "## Context\n\n> %s\n", shorten(t.Context, 600))
	}
	return b.String()
}
