package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/strand-search/strand/internal/search"
	"github.com/strand-search/strand/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

func newSearchCmd() *cobra.Command {
	var (
		limit    int
		offset   int
		sortBy   []string
		skipMode bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "search <uid> <query>",
		Short: "Search an index",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) > 1 {
				query = args[1]
			}

			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			ix, err := mgr.Get(args[0])
			if err != nil {
				return err
			}
			txn, err := ix.BeginTxn()
			if err != nil {
				return err
			}
			defer txn.Close()

			strategy := search.ScoringDefault
			if skipMode {
				strategy = search.ScoringSkip
			}

			res, err := search.Search(context.Background(), txn, mgr.Analyzer(), ix.Cache(),
				ix.Settings().RankingRules, search.Request{
					Query:           query,
					Offset:          offset,
					Limit:           limit,
					Sort:            sortBy,
					ScoringStrategy: strategy,
				}, search.NopLogger{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON || !isatty.IsTerminal(os.Stdout.Fd()) {
				return printJSONResults(out, txn, res)
			}
			return printPrettyResults(out, txn, res)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")
	cmd.Flags().StringSliceVar(&sortBy, "sort", nil, "Sort directives, e.g. price:asc")
	cmd.Flags().BoolVar(&skipMode, "skip-scoring", false, "Short-circuit scoring on trivial buckets")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Force JSON output")
	return cmd
}

func printJSONResults(w io.Writer, txn store.Txn, res *search.Result) error {
	type hit struct {
		ID     string         `json:"id"`
		Fields map[string]any `json:"fields"`
	}
	hits := make([]hit, 0, len(res.Docids))
	for _, docid := range res.Docids {
		id, _ := txn.ExternalID(docid)
		doc, err := txn.Document(docid)
		if err != nil {
			return err
		}
		hits = append(hits, hit{ID: id, Fields: doc})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"hits":               hits,
		"estimatedTotalHits": res.AllCandidates.GetCardinality(),
	})
}

func printPrettyResults(w io.Writer, txn store.Txn, res *search.Result) error {
	if len(res.Docids) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no results"))
		return nil
	}
	for i, docid := range res.Docids {
		id, _ := txn.ExternalID(docid)
		doc, err := txn.Document(docid)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "%s %s\n", titleStyle.Render(fmt.Sprintf("%d.", i+1)), titleStyle.Render(id))
		for field, value := range doc {
			fmt.Fprintf(w, "   %s %v\n", dimStyle.Render(field+":"), value)
		}
		if i < len(res.Scores) && len(res.Scores[i]) > 0 {
			line := ""
			for _, detail := range res.Scores[i] {
				line += fmt.Sprintf(" %s=%v", detail.RuleID(), detail.Summary())
			}
			fmt.Fprintf(w, "   %s%s\n", scoreStyle.Render("score:"), line)
		}
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("~%d total candidates", res.AllCandidates.GetCardinality())))
	return nil
}
