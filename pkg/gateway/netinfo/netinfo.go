// Package netinfo backs the GET /api/network/* endpoints: IsConnected and
// GetIPAddress report the device's current network reachability, and
// ConnectionConfigs reports the configured networks known to the device.
//
// No Wi-Fi/NetworkManager binding is available in this environment, and a
// platform that can't enumerate configured networks is an expected,
// tolerated case: ConnectionConfigs degrades to an empty list rather than
// erroring. Interface/address enumeration, unlike Wi-Fi scan results, is
// genuinely stdlib territory (net.Interfaces), so that part is
// implemented directly rather than stubbed.
package netinfo

import "net"

// IsConnected reports whether the device has at least one non-loopback
// interface carrying an IPv4 address.
func IsConnected() bool {
	_, ok := ipv4Address()
	return ok
}

// GetIPAddress returns the device's local IPv4 address, or the sentinel
// string "no network" if none is available.
func GetIPAddress() string {
	addr, ok := ipv4Address()
	if !ok {
		return "no network"
	}
	return addr
}

// ConnectionConfigs returns the configured networks known to the device.
// No Wi-Fi scanning library is available in this environment, so this
// always returns an empty, non-nil slice rather than erroring.
func ConnectionConfigs() []map[string]any {
	return []map[string]any{}
}

func ipv4Address() (string, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip4 := ip.To4(); ip4 != nil {
				return ip4.String(), true
			}
		}
	}
	return "", false
}
