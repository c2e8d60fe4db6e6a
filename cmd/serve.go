package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/vidyadost/vidyadost/internal/config"
	"github.com/vidyadost/vidyadost/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the transcript history and quiz score HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(cmd, depsOptions{})
		if err != nil {
			return err
		}
		defer d.Close()

		if d.cfg.History.Backend == config.BackendHTTP {
			return errors.New("serve cannot use the http history backend; choose sqlite, file or redis")
		}
		history, err := d.openTranscripts(cmd.Context())
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = d.cfg.Server.Addr
		}
		return server.New(history, d.store.QuizResultRepo(), d.log).Run(cmd.Context(), addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr from config)")
}
