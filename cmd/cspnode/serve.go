package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"csp-stack/csp"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		ports []uint
		sync  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve connections until interrupted",
		Long: `serve answers the service ports and prints every packet received on the
given ports. Connections to other ports are logged and closed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n, err := startNode(ctx, cmd, opts, false)
			if err != nil {
				return err
			}
			defer n.Close()

			b, err := n.inst.ServerSocketBuilder()
			if err != nil {
				return err
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			for _, port := range ports {
				if port > uint(csp.AnyPort) {
					return errors.Errorf("invalid port %d", port)
				}
				b.BindPort(uint8(port), func(c *csp.Conn) {
					it, err := c.Packets()
					if err != nil {
						n.logger.Warn("reading connection", "error", err)
						return
					}
					defer it.Close()

					for p := range it.All() {
						fmt.Fprintf(out, "%s -> %s: %q\n", it.Src(), it.Dst(), p.Bytes())
						p.Release()
					}
				})
			}
			b.Unhandled(csp.LogUnhandled)

			n.logger.Info("serving", "address", opts.cfg.Node.Address, "ports", ports)
			if sync {
				err = b.ServeSync(ctx)
			} else {
				err = b.Serve(ctx)
			}
			if errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().UintSliceVarP(&ports, "port", "p", []uint{10}, "ports to print packets from")
	cmd.Flags().BoolVar(&sync, "sync", false, "handle one connection at a time")
	return cmd
}
