package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/scitags/conntuple/probe"
)

var (
	verbosity string

	replayCmd = &cobra.Command{
		Use:   "replay <capture>",
		Short: "Extract tuples from a capture file and dump the resulting connections.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := ReadConf(confPath)
			if err != nil {
				return err
			}

			// Nothing to serve when replaying.
			conf.Api, conf.Telemetry, conf.Liveness = nil, nil, nil

			p, err := newPipeline(conf)
			if err != nil {
				return err
			}
			defer p.cleanup()

			src, err := probe.LoadReplay(args[0])
			if err != nil {
				return err
			}

			if err := p.probe.Run(make(chan struct{}), src); err != nil {
				return err
			}

			conns := p.store.Connections()
			for i := range conns {
				conns[i].Verbosity = verbosity
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "    ")
			return enc.Encode(conns)
		},
	}
)

func init() {
	replayCmd.Flags().StringVar(&verbosity, "verbosity", "", "set to lean to only print the connections' endpoints")
}
