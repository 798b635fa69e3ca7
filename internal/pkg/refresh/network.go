package refresh

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
)

// NetworkConnected is satisfied when a TCP connection to addr() can be opened.
func NetworkConnected(addr func() string, timeout time.Duration) Constraint {
	return func(ctx context.Context) bool {
		target := addr()
		if target == "" {
			return false
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			zap.L().Debug("network constraint not met", zap.String("addr", target), zap.Error(err))
			return false
		}
		_ = conn.Close()
		return true
	}
}
