package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cbegin/mzmml-go"
)

var (
	exportOut   string
	exportName  string
	exportImage string
	exportBin   string
)

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output QDC path (default <name>.qdc)")
	exportCmd.Flags().StringVar(&exportName, "name", "", "file name stored on the disk (default input name)")
	exportCmd.Flags().StringVar(&exportImage, "image", "", "24000-byte PCG picture shown while playing")
	exportCmd.Flags().StringVar(&exportBin, "bin", "", "also write the raw machine code to this path")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export a song as a bootable Quick Disk image",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, song, err := compileInput(args)
		if err != nil {
			return err
		}
		var image []byte
		if exportImage != "" {
			if image, err = os.ReadFile(exportImage); err != nil {
				return err
			}
		}
		code, err := mzmml.BuildMachineCode(song, image)
		if err != nil {
			return err
		}
		if exportBin != "" {
			if err := os.WriteFile(exportBin, code, 0o644); err != nil {
				return err
			}
		}

		name := exportName
		if name == "" {
			name = inputName(args, "MZMML")
		}
		disk, err := mzmml.BuildDiskImage(name, code)
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = inputName(args, "mzmml") + ".qdc"
		}
		if err := os.WriteFile(out, disk, 0o644); err != nil {
			return err
		}
		logger.Printf("wrote %s: %d bytes of machine code (%s)", out, len(code), describe(song))
		return nil
	},
}
