package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/wound-api/internal/handlers"
)

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify a local image file and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			a, err := bootstrap(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.service.Predict(cmd.Context(), data)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(handlers.PredictResponse{
				Class:       res.Class,
				Confidence:  res.Confidence,
				Suggestions: res.Suggestions,
			})
		},
	}
}

func newLabelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List the class labels in model output order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, label := range cat.Labels() {
				fmt.Fprintf(out, "%d\t%s\t%d suggestions\n", i, label, len(cat.Suggestions(label)))
			}
			return nil
		},
	}
}
