package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cbegin/mzmml-go/internal/mml"
)

var (
	formatOpts  = mml.DefaultFormatOptions()
	formatWrite bool
)

func init() {
	formatCmd.Flags().IntVar(&formatOpts.BeatsPerBar, "beats", formatOpts.BeatsPerBar, "beats per bar")
	formatCmd.Flags().IntVar(&formatOpts.BeatUnit, "unit", formatOpts.BeatUnit, "note value of one beat")
	formatCmd.Flags().IntVar(&formatOpts.BarsPerLine, "bars", formatOpts.BarsPerLine, "bars per output line")
	formatCmd.Flags().Float64Var(&formatOpts.Upbeat, "upbeat", 0, "pickup length in whole notes")
	formatCmd.Flags().BoolVar(&formatOpts.Spaced, "spaced", formatOpts.Spaced, "separate notes with spaces")
	formatCmd.Flags().BoolVarP(&formatWrite, "write", "w", false, "rewrite the input file instead of printing")
	rootCmd.AddCommand(formatCmd)
}

var formatCmd = &cobra.Command{
	Use:   "format [file]",
	Short: "Re-flow MML into one bar group per line",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := resolveMMLInput(args)
		if err != nil {
			return err
		}
		out := mml.Format(text, formatOpts)
		if !formatWrite {
			fmt.Print(out)
			return nil
		}
		path := mmlPath
		if path == "" && len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("--write needs an input file")
		}
		return os.WriteFile(path, []byte(out), 0o644)
	},
}
