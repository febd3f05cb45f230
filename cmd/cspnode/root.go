package main

import (
	"strconv"

	"csp-stack/internal/config"
	"csp-stack/internal/output"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// options are the global flags and what PersistentPreRunE derives from them.
type options struct {
	cfgFile      string
	outputFormat string

	cfg    *config.Config
	format output.Format
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "cspnode",
		Short: "Run a csp node and query other nodes",
		Long: `cspnode starts a csp node described by a YAML node file, links it to its
peers over TCP and then serves connections, pings nodes, queries their
services or streams data to and from them.

Every setting of the node file can be overridden with a CSP_ environment
variable, e.g. CSP_NODE_ADDRESS=3 or CSP_LOG_LEVEL=debug.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return errors.Wrap(err, "loading config")
			}
			opts.cfg = cfg

			opts.format, err = output.ParseFormat(opts.outputFormat)
			return err
		},
	}

	root.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "node file (defaults and CSP_ environment only when empty)")
	root.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "table", "output format: table, json, yaml")

	root.AddCommand(
		newServeCmd(opts),
		newPingCmd(opts),
		newSendCmd(opts),
		newStreamCmd(opts),
		newRecvCmd(opts),
		newInfoCmd(opts),
		newRebootCmd(opts),
		newTablesCmd(opts),
	)
	return root
}

func parseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid address %q", s)
	}
	return uint16(v), nil
}

func parsePort(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid port %q", s)
	}
	return uint8(v), nil
}
