package main

import (
	"fmt"
	"net"
	"os"

	"github.com/jackpal/gateway"
	"github.com/mdp/qrterminal/v3"
)

// lanIP picks the address other devices on the LAN can reach. The interface
// that routes to the default gateway wins; a UDP dial probe is the fallback.
func lanIP() string {
	if gw, err := gateway.DiscoverGateway(); err == nil {
		if ifaces, err := net.Interfaces(); err == nil {
			for _, iface := range ifaces {
				addrs, err := iface.Addrs()
				if err != nil {
					continue
				}
				for _, addr := range addrs {
					ipnet, ok := addr.(*net.IPNet)
					if !ok || ipnet.IP.To4() == nil {
						continue
					}
					if ipnet.Contains(gw) {
						return ipnet.IP.String()
					}
				}
			}
		}
	}
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// printBanner shows what is being shared, the share URL, and a QR code
// phones can scan.
func printBanner(listenAddr, root string) {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil || port == "" {
		port = "8000"
	}
	url := fmt.Sprintf("http://%s:%s", lanIP(), port)

	fmt.Println()
	fmt.Printf("  LanBox is sharing %s\n", root)
	fmt.Println("  Open this URL on any device in your network:")
	fmt.Println()
	fmt.Printf("    %s\n", url)
	fmt.Println()
	qrterminal.GenerateWithConfig(url, qrterminal.Config{
		Level:      qrterminal.M,
		Writer:     os.Stdout,
		HalfBlocks: true,
		QuietZone:  1,
	})
	fmt.Println()
}
