package main

import (
	"context"
	"io"
	"log/slog"

	"csp-stack/csp"
	"csp-stack/internal/logging"
	"csp-stack/stack/link"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// node is a running instance with its interfaces and routes in place.
type node struct {
	inst   *csp.Instance
	logger *slog.Logger

	logCloser io.Closer
	services  context.CancelFunc
	done      chan struct{}
}

// startNode builds the instance described by opts. With services set it also
// answers the service ports in the background.
func startNode(ctx context.Context, cmd *cobra.Command, opts *options, services bool) (*node, error) {
	logger, closer, err := logging.New(opts.cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, errors.Wrap(err, "setting up logging")
	}

	cfg, err := opts.cfg.Node.CSP()
	if err != nil {
		closer.Close()
		return nil, err
	}

	inst, err := csp.NewBuilder(cfg).WithLogger(logger).Build()
	if err != nil {
		closer.Close()
		return nil, err
	}
	n := &node{inst: inst, logger: logger, logCloser: closer}

	if err := n.link(ctx, opts); err != nil {
		n.Close()
		return nil, err
	}

	if services {
		if err := n.serveServices(); err != nil {
			n.Close()
			return nil, err
		}
	}
	return n, nil
}

// link opens every configured interface and installs the routes.
func (n *node) link(ctx context.Context, opts *options) error {
	opened := make(map[string]*link.Link, len(opts.cfg.Interfaces))
	for _, ic := range opts.cfg.Interfaces {
		if ic.Listen != "" {
			n.logger.Info("waiting for peer", "iface", ic.Name, "listen", ic.Listen)
		}
		l, err := ic.Open(ctx, n.logger)
		if err != nil {
			return errors.Wrapf(err, "opening interface %s", ic.Name)
		}
		if err := n.inst.AddInterface(l); err != nil {
			l.Close()
			return err
		}
		opened[ic.Name] = l
		n.logger.Info("interface up", "iface", ic.Name)
	}

	for _, rc := range opts.cfg.Routes {
		if err := n.inst.AddRoute(rc.Route(), opened[rc.Interface]); err != nil {
			return err
		}
	}
	return nil
}

// serveServices answers connections to the service ports until Close.
// Connections to other ports are dropped.
func (n *node) serveServices() error {
	b, err := n.inst.ServerSocketBuilder()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.services = cancel
	n.done = make(chan struct{})
	go func() {
		defer close(n.done)
		defer b.Close()
		if err := b.Serve(ctx); !errors.Is(err, context.Canceled) {
			n.logger.Error("service server stopped", "error", err)
		}
	}()
	return nil
}

// Close stops the node. Interfaces are closed with the stack.
func (n *node) Close() {
	if n.services != nil {
		n.services()
		<-n.done
	}
	n.inst.Stop()
	n.logCloser.Close()
}
