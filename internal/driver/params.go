package driver

import "fmt"

// Transport selects the physical link to the vehicle.
type Transport string

// Supported transports.
const (
	TransportUDP Transport = "UDP"
	TransportUSB Transport = "USB"
)

// Link defaults.
const (
	DefaultUDPPort = 14550
	DefaultUSBBaud = 57600
)

// ConnectionParameter describes how a Drone reaches its vehicle. Exactly one of
// UDP and USB is set, matching Transport.
type ConnectionParameter struct {
	Transport Transport
	UDP       *UDPParams
	USB       *USBParams
}

// UDPParams binds LocalPort and, when RemoteHost is set, also pings
// RemoteHost:RemotePort so the vehicle learns where to send telemetry.
type UDPParams struct {
	LocalPort  int
	RemoteHost string
	RemotePort int
}

// USBParams selects the serial baud rate.
type USBParams struct {
	BaudRate int
}

// NewUDPConnection returns parameters for a UDP link. An empty remoteHost means
// listen only.
func NewUDPConnection(localPort int, remoteHost string, remotePort int) ConnectionParameter {
	return ConnectionParameter{
		Transport: TransportUDP,
		UDP:       &UDPParams{LocalPort: localPort, RemoteHost: remoteHost, RemotePort: remotePort},
	}
}

// NewUSBConnection returns parameters for a serial link.
func NewUSBConnection(baud int) ConnectionParameter {
	return ConnectionParameter{
		Transport: TransportUSB,
		USB:       &USBParams{BaudRate: baud},
	}
}

// String renders the parameters for logs.
func (p ConnectionParameter) String() string {
	switch {
	case p.UDP != nil && p.UDP.RemoteHost != "":
		return fmt.Sprintf("udp local=%d remote=%s:%d", p.UDP.LocalPort, p.UDP.RemoteHost, p.UDP.RemotePort)
	case p.UDP != nil:
		return fmt.Sprintf("udp local=%d", p.UDP.LocalPort)
	case p.USB != nil:
		return fmt.Sprintf("usb baud=%d", p.USB.BaudRate)
	default:
		return string(p.Transport)
	}
}
