package net

import (
	"net"

	"github.com/golang/glog"
)

// GetOutgoingIP finds the preferred local IP address for the relay to share.
func GetOutgoingIP() string {
	// no packets are sent; dialing UDP only selects a route
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return firstIPv4().String()
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// ShareURL is the address other participants on the network join with.
func ShareURL(port int) string {
	return relayURL(GetOutgoingIP(), port)
}

// firstIPv4 is used on networks without a default route.
func firstIPv4() net.IP {
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	glog.Warningf("[mdns] no suitable local IP found, share link uses loopback\n")
	return net.IPv4(127, 0, 0, 1)
}
