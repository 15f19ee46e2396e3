package net

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/hashicorp/mdns"

	"MapBoard/internal/state"
)

const serviceType = "_mapboard._tcp"

// Advertise announces a relay listening on port to the local network.
// Close the returned server to withdraw it.
func Advertise(port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	var ips []net.IP
	if ip := net.ParseIP(GetOutgoingIP()); ip != nil {
		ips = []net.IP{ip}
	}
	info := []string{"MapBoard relay", "path=/ws"}

	service, err := mdns.NewMDNSService(host, serviceType, "", "", port, ips, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	glog.Infof("[mdns] advertising %s on port %d\n", serviceType, port)
	return server, nil
}

// Browse reports every relay answering within timeout as a WebSocket URL.
func Browse(ctx context.Context, timeout time.Duration, found func(url string)) error {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			glog.V(2).Infof("[mdns] found %s at %s:%d\n", e.Name, e.AddrV4, e.Port)
			found(relayURL(e.AddrV4.String(), e.Port))
		}
	}()

	params := mdns.DefaultParams(serviceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-done
	return err
}

// Discover returns the first relay found on the local network.
func Discover(ctx context.Context, timeout time.Duration) (string, error) {
	var first string
	err := Browse(ctx, timeout, func(url string) {
		if first == "" {
			first = url
		}
	})
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", fmt.Errorf("no relay answered within %s: %w", timeout, state.ErrNotFound)
	}
	return first, nil
}

func relayURL(host string, port int) string {
	return fmt.Sprintf("ws://%s/ws", net.JoinHostPort(host, fmt.Sprint(port)))
}
