package config

import (
	"context"
	"log/slog"

	"csp-stack/stack/link"
)

// Open dials or listens for the peer of i. A listening interface blocks
// until its peer connects or ctx is done.
func (i InterfaceConfig) Open(ctx context.Context, logger *slog.Logger) (*link.Link, error) {
	opts := link.Options{Name: i.Name, Accept: i.Accept, Logger: logger}
	if i.Dial != "" {
		return link.DialTCP(ctx, i.Dial, opts)
	}
	return link.ListenTCP(ctx, i.Listen, opts)
}
