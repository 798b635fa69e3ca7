package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	service        = "_http._tcp"
	domain         = "local."
	hostnamePrefix = "esp32"
	DefaultTimeout = 5 * time.Second
)

// Device is an ESP32 rig announcing itself over mDNS.
type Device struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
}

// Endpoint is the value stored in the endpoint setting.
func (d Device) Endpoint() string {
	if d.Port == 0 || d.Port == 80 {
		return d.IP
	}
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// Browse listens for mDNS announcements for up to timeout and returns the
// ESP32 devices seen, in discovery order.
func Browse(ctx context.Context, timeout time.Duration) ([]Device, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for devices: %w", err)
	}

	var devices []Device
	seen := map[string]struct{}{}
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return devices, nil
			}
			device, ok := fromEntry(entry)
			if !ok {
				continue
			}
			if _, dup := seen[device.Endpoint()]; dup {
				continue
			}
			seen[device.Endpoint()] = struct{}{}
			zap.L().Debug("device discovered", zap.String("hostname", device.Hostname), zap.String("ip", device.IP))
			devices = append(devices, device)
		case <-ctx.Done():
			return devices, nil
		}
	}
}

func fromEntry(entry *zeroconf.ServiceEntry) (Device, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return Device{}, false
	}
	if !strings.HasPrefix(strings.ToLower(entry.HostName), hostnamePrefix) {
		return Device{}, false
	}
	return Device{
		Hostname: strings.TrimSuffix(entry.HostName, "."),
		IP:       entry.AddrIPv4[0].String(),
		Port:     entry.Port,
	}, true
}
