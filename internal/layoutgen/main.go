// Command layoutgen writes the offsets the runtime strategy compiles in,
// relocated against the BTF of the kernel it runs on.
package main

import (
	"bytes"
	"fmt"
	"go/format"
	"log/slog"
	"os"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/scitags/conntuple/kernel"
)

// Go identifiers of the fields, as used in the generated constants.
var fieldNames = map[kernel.Field]string{
	kernel.SkFamily:     "SkFamily",
	kernel.SkNum:        "SkNum",
	kernel.SkDport:      "SkDport",
	kernel.SkRcvSaddr:   "SkRcvSaddr",
	kernel.SkDaddr:      "SkDaddr",
	kernel.SkV6RcvSaddr: "SkV6RcvSaddr",
	kernel.SkV6Daddr:    "SkV6Daddr",
	kernel.SkNet:        "SkNet",
	kernel.InetSport:    "InetSport",
	kernel.InetDport:    "InetDport",
	kernel.InetSaddr:    "InetSaddr",
	kernel.InetDaddr:    "InetDaddr",
	kernel.TCPSegsIn:    "TCPSegsIn",
	kernel.TCPSegsOut:   "TCPSegsOut",
	kernel.NetNsInum:    "NetNsInum",
	kernel.SocketSk:     "SocketSk",
}

var layoutTemplate = template.Must(template.New("layout").Parse(`// Code generated by layoutgen for {{.Release}}. DO NOT EDIT.

package kernel

const (
{{- range .Fields}}
	hostOff{{.Name}} = {{.Offset}}
{{- end}}
)

func hostOffset(f Field) (uint32, bool) {
	switch f {
{{- range .Fields}}
	case {{.Name}}:
		return hostOff{{.Name}}, true
{{- end}}
	}
	return 0, false
}
`))

type field struct {
	Name   string
	Offset uint32
}

var (
	outPath string
	btfPath string
	release string

	rootCmd = &cobra.Command{
		Use:   "layoutgen",
		Short: "Generate the compiled-in layout of the runtime strategy.",
		Long: "layoutgen relocates every kernel field against the BTF of the running\n" +
			"kernel (or the one given) and writes the offsets out as Go source.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return generate(outPath, btfPath, release)
		},
	}
)

func init() {
	rootCmd.Flags().StringVarP(&outPath, "output", "o", "layout_host.go", "file to write")
	rootCmd.Flags().StringVar(&btfPath, "btf", "", "BTF blob to relocate against, the running kernel's when empty")
	rootCmd.Flags().StringVar(&release, "release", "", "release to mention in the header, the running kernel's when empty")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("error generating the layout", "err", err)
		os.Exit(1)
	}
}

func generate(out, btfPath, release string) error {
	layout, err := kernel.LoadKernelLayout(btfPath)
	if err != nil {
		return err
	}

	if release == "" {
		if release, _, err = kernel.Uname(); err != nil {
			return err
		}
	}

	src, err := render(layout, release)
	if err != nil {
		return err
	}

	return os.WriteFile(out, src, 0o644)
}

// render emits fields in declaration order.
func render(layout *kernel.Layout, release string) ([]byte, error) {
	data := struct {
		Release string
		Fields  []field
	}{Release: release}

	for _, f := range kernel.Fields() {
		name, ok := fieldNames[f]
		if !ok {
			return nil, fmt.Errorf("no identifier for field %s", f)
		}
		off, ok := layout.Offset(f)
		if !ok {
			return nil, fmt.Errorf("field %s wasn't relocated", f)
		}
		data.Fields = append(data.Fields, field{Name: name, Offset: off})
	}

	var buf bytes.Buffer
	if err := layoutTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}

	return format.Source(buf.Bytes())
}
