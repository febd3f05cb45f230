package link

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// DialTCP connects to a peer node listening on address.
func DialTCP(ctx context.Context, address string, opts Options) (*Link, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", address)
	}
	return New(conn, opts), nil
}

// ListenTCP waits for a single peer node to connect on address.
func ListenTCP(ctx context.Context, address string, opts Options) (*Link, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", address)
	}
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "waiting for peer")
		}
		return nil, errors.Wrapf(err, "accepting on %s", address)
	}
	return New(conn, opts), nil
}
