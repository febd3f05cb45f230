package main

import (
	"fmt"
	"io"
	"time"

	"csp-stack/csp"
	"csp-stack/internal/output"
	"csp-stack/stack"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newPingCmd(opts *options) *cobra.Command {
	var (
		timeout time.Duration
		size    int
		count   int
	)

	cmd := &cobra.Command{
		Use:   "ping <address>",
		Short: "Ping a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			n, err := startNode(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer n.Close()

			for i := range count {
				rtt, err := n.inst.Client().PingTimeoutSize(addr, timeout, size)
				if err != nil {
					return errors.Wrapf(err, "ping %d", i+1)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reply from %d: seq=%d size=%d time=%s\n", addr, i+1, size, rtt)
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Second, "reply timeout")
	cmd.Flags().IntVarP(&size, "size", "s", 100, "payload size in bytes")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of pings")
	return cmd
}

func newSendCmd(opts *options) *cobra.Command {
	var (
		timeout time.Duration
		reply   bool
	)

	cmd := &cobra.Command{
		Use:   "send <address> <port> <message>",
		Short: "Send one packet, optionally waiting for a reply",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}

			n, err := startNode(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer n.Close()

			client := n.inst.Client()
			if reply {
				b, err := client.Transaction(addr, port, []byte(args[2]), timeout)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%q\n", b)
				return nil
			}

			c, err := client.Connect(addr, port, csp.PrioNormal, timeout)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.SendPacket([]byte(args[2]))
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Second, "connect and reply timeout")
	cmd.Flags().BoolVarP(&reply, "reply", "r", false, "wait for and print a reply")
	return cmd
}

func newStreamCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stream <address> <port>",
		Short: "Stream standard input to a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}

			n, err := startNode(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer n.Close()

			c, err := n.inst.Client().Connect(addr, port, csp.PrioNormal, timeout)
			if err != nil {
				return err
			}
			w, err := c.IntoWriter()
			if err != nil {
				return err
			}

			sent, err := io.Copy(w, cmd.InOrStdin())
			if cerr := w.Close(); err == nil {
				err = cerr
			}
			n.logger.Info("stream finished", "bytes", sent)
			return err
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Second, "connect timeout")
	return cmd
}

func newRecvCmd(opts *options) *cobra.Command {
	var (
		wait    time.Duration
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "recv <port>",
		Short: "Accept one connection on port and copy it to standard output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}

			n, err := startNode(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer n.Close()

			sock, err := n.inst.OpenServerSocket(port)
			if err != nil {
				return err
			}
			defer sock.Close()

			var c *csp.Conn
			if wait > 0 {
				var ok bool
				if c, ok = sock.AcceptTimeout(wait); !ok {
					return errors.Errorf("no connection on port %d within %s", port, wait)
				}
			} else {
				c = sock.Accept()
			}

			r, err := c.IntoReader(timeout)
			if err != nil {
				return err
			}
			defer r.Close()

			_, err = io.Copy(cmd.OutOrStdout(), r)
			return err
		},
	}

	cmd.Flags().DurationVarP(&wait, "wait", "w", 0, "give up when no connection arrives in time (0 waits forever)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Second, "end the stream after this long without data")
	return cmd
}

// nodeInfo is what info reports about a node.
type nodeInfo struct {
	Address uint16      `json:"address" yaml:"address"`
	Uptime  string      `json:"uptime" yaml:"uptime"`
	BufFree uint32      `json:"buf_free" yaml:"buf_free"`
	MemFree uint32      `json:"mem_free" yaml:"mem_free"`
	Ident   stack.Ident `json:"ident" yaml:"ident"`
	Process string      `json:"ps" yaml:"ps"`
}

func newInfoCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "info <address>",
		Short: "Query the service ports of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			n, err := startNode(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer n.Close()

			info, err := queryInfo(n.inst.Client(), addr, timeout)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), opts.format, info, nil)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Second, "timeout per query")
	return cmd
}

func queryInfo(client csp.Client, addr uint16, timeout time.Duration) (nodeInfo, error) {
	info := nodeInfo{Address: addr}

	up, err := client.Uptime(addr, timeout)
	if err != nil {
		return info, errors.Wrap(err, "uptime")
	}
	info.Uptime = up.String()

	if info.BufFree, err = client.BufFree(addr, timeout); err != nil {
		return info, errors.Wrap(err, "buf free")
	}
	if info.MemFree, err = client.MemFree(addr, timeout); err != nil {
		return info, errors.Wrap(err, "mem free")
	}
	if info.Ident, err = client.Ident(addr, timeout); err != nil {
		return info, errors.Wrap(err, "ident")
	}
	if info.Process, err = client.PS(addr, timeout); err != nil {
		return info, errors.Wrap(err, "ps")
	}
	return info, nil
}

func newRebootCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "reboot <address>",
		Short: "Ask a node to reboot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}

			n, err := startNode(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer n.Close()

			return n.inst.Client().Reboot(addr, timeout)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Second, "connect timeout")
	return cmd
}

func newTablesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "Print the connection, interface and route tables of this node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := startNode(cmd.Context(), cmd, opts, true)
			if err != nil {
				return err
			}
			defer n.Close()

			return output.Write(cmd.OutOrStdout(), opts.format, n.inst.Tables(), func(w io.Writer) error {
				for _, section := range []struct {
					title string
					print func(io.Writer) error
				}{
					{"Connections", n.inst.PrintConnTable},
					{"Interfaces", n.inst.PrintIfList},
					{"Routes", n.inst.PrintRTable},
				} {
					fmt.Fprintf(w, "%s:\n", section.title)
					if err := section.print(w); err != nil {
						return err
					}
					fmt.Fprintln(w)
				}
				return nil
			})
		},
	}
}
