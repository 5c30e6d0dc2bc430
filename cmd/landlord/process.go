package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/spf13/cobra"
)

func processCMD(opts *rootOptions) *cobra.Command {
	var location string
	process := &cobra.Command{
		Use:   "process <message>",
		Short: "Run one message through the pipeline and print the final state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			state, runErr := a.pipeline.ProcessMessage(cmd.Context(), core.Inbound{
				Text:     strings.Join(args, " "),
				Location: location,
			})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(state); err != nil {
				return err
			}
			var perr *core.ProcessingError
			if errors.As(runErr, &perr) {
				cmd.PrintErrln(core.UserMessage)
			}
			return runErr
		},
	}
	process.Flags().StringVar(&location, "location", "", "where the tenant is (used for worker search)")
	return process
}

func refreshCMD(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Process one batch of unprocessed inbox messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context(), opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.refresher.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
}
