package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"EntryGate/internal/domain/models"
	"EntryGate/internal/services/engine"
	"EntryGate/internal/services/features"
	"EntryGate/internal/usecase"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "condctl",
		Short:         "Inspect and try out trade-condition documents offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(validateCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(defaultsCmd())
	return root
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a conditions document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadConditions(args[0])
			if err != nil {
				if se, ok := models.AsSchemaError(err); ok {
					printIssues(cmd.OutOrStdout(), se)
				}
				return err
			}
			mode := doc.Mode
			if doc.IsEmpty() {
				mode = "empty (default rules)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: mode=%s\n", mode)
			return nil
		},
	}
}

func scoreCmd() *cobra.Command {
	var (
		conditionsPath string
		snapshotPath   string
		longStreak     int
		shortStreak    int
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Evaluate one snapshot against a conditions document",
		Example: `  condctl score --conditions conditions.json --snapshot tick.json
  condctl score --snapshot tick.json --long-streak 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := &models.TradeConditions{}
			if conditionsPath != "" {
				var err error
				if doc, err = loadConditions(conditionsPath); err != nil {
					return err
				}
			}
			b, err := os.ReadFile(snapshotPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			snap, err := usecase.DecodeSnapshot(b)
			if err != nil {
				return err
			}

			v := &models.VersionedConditions{Document: doc}
			state := &models.MarketState{LongStreak: longStreak, ShortStreak: shortStreak}
			ev := engine.Select(v, engine.NewDefaultEngine()).Evaluate(features.Derive(snap), state)
			return writeJSON(cmd.OutOrStdout(), ev)
		},
	}
	cmd.Flags().StringVar(&conditionsPath, "conditions", "", "conditions document (default rules when omitted)")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "snapshot JSON file")
	cmd.Flags().IntVar(&longStreak, "long-streak", 0, "LONG streak before this tick")
	cmd.Flags().IntVar(&shortStreak, "short-streak", 0, "SHORT streak before this tick")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}

func defaultsCmd() *cobra.Command {
	var builtin bool
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print an example conditions document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if builtin {
				return writeJSON(cmd.OutOrStdout(), engine.NewDefaultEngine().Document())
			}
			return writeJSON(cmd.OutOrStdout(), models.DefaultConditions())
		},
	}
	cmd.Flags().BoolVar(&builtin, "builtin", false, "print the built-in rules used when no document is set")
	return cmd
}

func loadConditions(path string) (*models.TradeConditions, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conditions: %w", err)
	}
	doc, err := models.DecodeConditions(b)
	if err != nil {
		return nil, err
	}
	doc.Normalize()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func printIssues(w io.Writer, se *models.SchemaError) {
	for _, is := range se.Issues {
		field := is.Field
		if field == "" {
			field = "(document)"
		}
		fmt.Fprintf(w, "  %s: %s\n", field, is.Reason)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
