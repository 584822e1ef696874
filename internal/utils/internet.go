package utils

import (
	"net"

	"go.uber.org/zap"
)

// NetworkInterface is an up, non-loopback interface and its addresses.
type NetworkInterface struct {
	Name  string
	Addrs []string
}

// NetworkInterfaces lists the interfaces a client could reach the server on.
func NetworkInterfaces() ([]NetworkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []NetworkInterface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		ni := NetworkInterface{Name: iface.Name}
		for _, addr := range addrs {
			ni.Addrs = append(ni.Addrs, addr.String())
		}
		out = append(out, ni)
	}
	return out, nil
}

// LogNetworkInfo logs every reachable interface at startup.
func LogNetworkInfo(log *zap.Logger) {
	ifaces, err := NetworkInterfaces()
	if err != nil {
		log.Warn("listing network interfaces", zap.Error(err))
		return
	}
	for _, ni := range ifaces {
		log.Info("network interface", zap.String("name", ni.Name), zap.Strings("addrs", ni.Addrs))
	}
}
