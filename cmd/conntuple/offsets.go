package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/scitags/conntuple/kernel"
)

var (
	fingerprint kernel.Fingerprint

	offsetsCmd = &cobra.Command{
		Use:   "offsets",
		Short: "Work with offsets tables for prebuilt binaries.",
	}

	offsetsValidateCmd = &cobra.Command{
		Use:   "validate <table>",
		Short: "Check an offsets table against its schema.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := kernel.LoadOffsetTable(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d kernels\n", args[0], len(t.Kernels))
			return nil
		},
	}

	offsetsResolveCmd = &cobra.Command{
		Use:   "resolve <table>",
		Short: "Print the offsets a kernel would be read at, the running one by default.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := kernel.LoadOffsetTable(args[0])
			if err != nil {
				return err
			}

			fp := fingerprint
			if fp.Release == "" {
				conf, err := ReadConf(confPath)
				if err != nil {
					return err
				}
				if fp, err = kernel.HostFingerprint(conf.Probe.HostRoot); err != nil {
					return err
				}
			}

			offsets, err := t.Resolve(fp)
			if err != nil {
				return fmt.Errorf("%s: %w", fp, err)
			}

			return printYAML(offsets)
		},
	}
)

func init() {
	offsetsResolveCmd.Flags().StringVar(&fingerprint.Release, "release", "", "kernel release, the running kernel's when empty")
	offsetsResolveCmd.Flags().StringVar(&fingerprint.Machine, "machine", "", "kernel machine")
	offsetsResolveCmd.Flags().StringVar(&fingerprint.ConfigDigest, "config-digest", "", "digest of the layout-relevant kconfig options")

	offsetsCmd.AddCommand(offsetsValidateCmd)
	offsetsCmd.AddCommand(offsetsResolveCmd)
}

func printYAML(v any) error {
	m, err := yaml.MarshalWithOptions(v, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(m)
	return err
}
