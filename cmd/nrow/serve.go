package main

import (
	"github.com/spf13/cobra"

	"github.com/brensch/nrow/server"
)

var (
	serveListen string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve moves over HTTP and stream matches over a websocket",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ev, closer, err := newEvaluator()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	listen := cfg.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}
	s := server.New(server.Options{
		Width:       cfg.Board.Width,
		Height:      cfg.Board.Height,
		NInRow:      cfg.Board.NInRow,
		Search:      cfg.MCTS(),
		Pure:        cfg.Pure(),
		MoveTimeout: cfg.Server.MoveTimeout,
	}, ev)
	return s.ListenAndServe(cmd.Context(), listen)
}
