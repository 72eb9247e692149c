package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cbegin/mzmml-go"
)

var (
	renderOut        string
	renderSampleRate int
	renderSeconds    float64
)

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "output WAV path (default <name>.wav)")
	renderCmd.Flags().IntVar(&renderSampleRate, "sample-rate", 44100, "output sample rate")
	renderCmd.Flags().Float64Var(&renderSeconds, "seconds", 0, "length to render; 0 renders one pass")
	rootCmd.AddCommand(renderCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Render a song to a 16-bit WAV file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, song, err := compileInput(args)
		if err != nil {
			return err
		}
		out := renderOut
		if out == "" {
			out = inputName(args, "mzmml") + ".wav"
		}
		samples := mzmml.RenderSamples(song, renderSampleRate, renderSeconds)

		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := mzmml.EncodeWAV(f, samples, renderSampleRate); err != nil {
			return err
		}
		logger.Printf("wrote %s (%s)", out, describe(song))
		return nil
	},
}
