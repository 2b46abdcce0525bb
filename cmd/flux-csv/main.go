// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command flux-csv serves a CSV change list as a flux trace adapter:
// it writes the flux stream to stdout and answers viewer control frames
// on stdin.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"code.hybscloud.com/flux/adapter"
)

func main() {
	var maxEntrySize int

	cmd := &cobra.Command{
		Use:          "flux-csv <change-list.csv>",
		Short:        "serve a CSV change list over the flux control channel",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("could not open: %w", err)
			}
			defer f.Close()

			src, err := adapter.LoadCSV(f)
			if err != nil {
				return err
			}
			cfg := adapter.DefaultConfig
			cfg.MaxEntrySize = maxEntrySize
			return adapter.Serve(os.Stdin, os.Stdout, args[0], src, cfg)
		},
	}
	cmd.Flags().IntVar(&maxEntrySize, "max-entry-size", adapter.DefaultConfig.MaxEntrySize, "maximum entry and control frame size")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(20)
	}
}
