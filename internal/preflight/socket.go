package preflight

import (
	"fmt"
	"net"
)

// CheckSocketBind verifies addr is bindable on the given network ("udp" or
// "tcp") before the real listener starts — a port already in use should
// surface as a FatalStartup error, not a panic three layers into service
// startup.
func (c *Checker) CheckSocketBind(network, addr string) CheckResult {
	result := CheckResult{
		Name:     network + "_bind:" + addr,
		Required: true,
	}

	switch network {
	case "udp":
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("invalid address: %v", err)
			return result
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("cannot bind: %v", err)
			return result
		}
		_ = conn.Close()
	default:
		ln, err := net.Listen(network, addr)
		if err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("cannot bind: %v", err)
			return result
		}
		_ = ln.Close()
	}

	result.Status = StatusPass
	result.Message = "available"
	return result
}
