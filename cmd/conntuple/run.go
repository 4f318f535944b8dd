package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scitags/conntuple/probe"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract tuples from the capture program's ring buffer.",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := ReadConf(confPath)
		if err != nil {
			return err
		}
		slog.Debug("running with", "conf", conf.String())

		p, err := newPipeline(conf)
		if err != nil {
			return err
		}
		defer p.cleanup()

		done := make(chan struct{})
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			slog.Info("caught signal, stopping", "signal", sig)
			close(done)
		}()

		if conf.Probe.WaitForRingbuf {
			if err := probe.WaitForPin(done, conf.Probe.RingbufPath); err != nil {
				if errors.Is(err, probe.ErrSourceClosed) {
					return nil
				}
				return err
			}
		}

		src, err := probe.OpenRingbuf(conf.Probe.RingbufPath)
		if err != nil {
			return err
		}

		p.start(done)

		slog.Info("extracting tuples", "strategy", probe.Strategy, "ringbuf", conf.Probe.RingbufPath)
		return p.probe.Run(done, src)
	},
}
