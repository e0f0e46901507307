package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petems/audiotap/internal/app"
	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/permissions"
)

func newDevicesCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := c.engine(nil).ListAudioDevices()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), devices)
			}
			return writeDevices(cmd.OutOrStdout(), devices)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMethodsCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "Show which capture methods this system supports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := app.New(app.Config{Engine: c.engine(nil), Config: c.cfg, Logger: c.log})
			methods := a.Methods()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), methods)
			}
			return writeMethods(cmd.OutOrStdout(), methods)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newPermissionsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "permissions",
		Short: "Show the privacy grants capture depends on",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), permissions.Check())
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeDevices(w io.Writer, devices []audio.Device) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFLAGS")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ID, d.Name, deviceFlags(d))
	}
	return tw.Flush()
}

func deviceFlags(d audio.Device) string {
	switch {
	case d.Default && d.Virtual:
		return "default,virtual"
	case d.Default:
		return "default"
	case d.Virtual:
		return "virtual"
	default:
		return ""
	}
}

func writeMethods(w io.Writer, methods []app.MethodStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tAVAILABLE")
	for _, m := range methods {
		fmt.Fprintf(tw, "%s\t%t\n", m.Method, m.Available)
	}
	return tw.Flush()
}
