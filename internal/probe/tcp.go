package probe

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const tcpTimeout = 5 * time.Second

func evaluateTCP(ctx context.Context, cfg *TCPConfig, fam Family) error {
	addr, err := fam.resolveHostPort(ctx, cfg.Host, strconv.Itoa(int(cfg.Port)))
	if err != nil {
		return fmt.Errorf("invalid host: %w", err)
	}

	conn, err := fam.dialer(tcpTimeout).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect socket %s: %w", addr, err)
	}
	defer conn.Close()
	return nil
}
