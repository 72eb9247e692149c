package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cbegin/mzmml-go"
	"github.com/cbegin/mzmml-go/internal/server"
)

var (
	serveAddr       string
	serveSampleRate int
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().IntVar(&serveSampleRate, "sample-rate", 48000, "preview sample rate")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the compiler and live preview over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := mzmml.NewPlayer(serveSampleRate, mzmml.WithLogger(logger))
		if err != nil {
			return err
		}
		s := server.New(pl)
		s.Logger = logger
		logger.Printf("listening on %s", serveAddr)
		return http.ListenAndServe(serveAddr, s.Handler())
	},
}
