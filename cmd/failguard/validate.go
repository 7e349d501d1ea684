package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/failguard/resilience"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a policy bundle file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}

			bundles, err := resilience.LoadBundlesFile(path)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(bundles))
			for name := range bundles {
				names = append(names, name)
			}
			slices.Sort(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(out, "%s: %v\n", name, bundles[name].Layers())
			}
			fmt.Fprintf(out, "%d bundle(s) valid\n", len(bundles))
			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "", "Path to the bundle file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
