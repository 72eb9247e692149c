package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cbegin/mzmml-go"
)

var (
	playSampleRate int
	playVolume     float64
	playLoop       bool
	playMetronome  bool
	playMute       []string
)

func init() {
	playCmd.Flags().IntVar(&playSampleRate, "sample-rate", 48000, "output sample rate")
	playCmd.Flags().Float64Var(&playVolume, "volume", 1.0, "master volume scalar")
	playCmd.Flags().BoolVar(&playLoop, "loop", true, "keep looping songs with an L marker until interrupted")
	playCmd.Flags().BoolVar(&playMetronome, "metronome", false, "click on every quarter note")
	playCmd.Flags().StringSliceVar(&playMute, "mute", nil, "channels to mute, e.g. --mute B,H")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play [file]",
	Short: "Preview a song through the software PSG",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, song, err := compileInput(args)
		if err != nil {
			return err
		}
		pl, err := mzmml.NewPlayer(playSampleRate,
			mzmml.WithLogger(logger),
			mzmml.WithLoopPlayback(playLoop),
			mzmml.WithMetronome(playMetronome),
		)
		if err != nil {
			return err
		}
		pl.SetMasterVolume(playVolume)
		for _, name := range playMute {
			if err := pl.SetChannelActive(name, false); err != nil {
				return err
			}
		}

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)
		go func() {
			<-interrupt
			_ = pl.Stop()
		}()

		ch := pl.Watch()
		logger.Printf("playing %s", describe(song))
		if err := pl.Play(song); err != nil {
			return err
		}
		for event := range ch {
			if event.Kind == mzmml.EventPlaybackEnded {
				fmt.Println("playback completed")
				break
			}
		}
		pl.Wait()
		return nil
	},
}
