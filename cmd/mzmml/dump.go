package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/cbegin/mzmml-go/internal/bytecode"
)

var dumpVerbose bool

func init() {
	dumpCmd.Flags().BoolVarP(&dumpVerbose, "verbose", "v", false, "dump every compiled structure")
	rootCmd.AddCommand(dumpCmd)
}

var dumpCmd = &cobra.Command{
	Use:   "dump [file]",
	Short: "Print the compiled channel programs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, song, err := compileInput(args)
		if err != nil {
			return err
		}
		fmt.Println(describe(song))
		for _, ch := range song.Channels {
			fmt.Printf("\n%s (%d bytes)\n", ch.Name, len(ch.Program))
			fmt.Print(bytecode.Disassemble(ch.Program, ch.Name == "P"))
		}
		if dumpVerbose {
			cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}
			fmt.Println()
			cfg.Dump(song.Volume, song.Pitch)
			for _, ch := range song.Channels {
				cfg.Dump(ch.Timeline)
			}
		}
		return nil
	},
}
