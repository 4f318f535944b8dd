package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/scitags/conntuple/kernel"
	"github.com/scitags/conntuple/probe"
)

var (
	layoutCmd = &cobra.Command{
		Use:   "layout",
		Short: "Print where the built strategy reads socket fields on this host.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := ReadConf(confPath)
			if err != nil {
				return err
			}

			p, err := probe.New(conf.Probe, nil, nil)
			if err != nil {
				return err
			}

			fmt.Printf("strategy: %s (%s)\n\n", probe.Strategy, p.Describe())

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "STRUCT\tFIELD\tOFFSET\tSIZE")
			for _, e := range p.Layout().Entries() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", e.Field.Struct(), e.Field, e.Offset, e.Field.Size())
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if missing := p.Layout().Missing(probe.RequiredFields()...); len(missing) > 0 {
				slog.Warn("some fields will read as zero", "fields", missing)
			}
			return nil
		},
	}

	fingerprintCmd = &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the running kernel's fingerprint as used by offsets tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := ReadConf(confPath)
			if err != nil {
				return err
			}

			fp, err := kernel.HostFingerprint(conf.Probe.HostRoot)
			if err != nil {
				return err
			}

			return printYAML(fp)
		},
	}
)
