package supervisor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flightlink/copter-actor/internal/driver"
)

// ParseConnection turns a transport name and address string into driver
// parameters. Transport names match case-insensitively.
//
//	UDP: "" | "localPort" | "remoteHost" | "localPort:remoteHost[:remotePort]"
//	USB: "" | "baudRate"
//
// Empty ports fall back to cfg.DefaultUDPPort and an empty baud rate to
// cfg.DefaultUSBBaud.
func ParseConnection(transport, address string, cfg Config) (driver.ConnectionParameter, error) {
	cfg = cfg.withDefaults()
	address = strings.TrimSpace(address)

	switch driver.Transport(strings.ToUpper(strings.TrimSpace(transport))) {
	case driver.TransportUDP:
		return parseUDP(address, cfg.DefaultUDPPort)
	case driver.TransportUSB:
		return parseUSB(address, cfg.DefaultUSBBaud)
	default:
		return driver.ConnectionParameter{}, fmt.Errorf("%w: %q", ErrUnsupportedTransport, transport)
	}
}

func parseUDP(address string, defaultPort int) (driver.ConnectionParameter, error) {
	if address == "" {
		return driver.NewUDPConnection(defaultPort, "", 0), nil
	}

	parts := strings.Split(address, ":")
	switch len(parts) {
	case 1:
		// A lone token is a local port when numeric, otherwise a remote host.
		if isDigits(parts[0]) {
			local, err := parsePort(parts[0], defaultPort)
			if err != nil {
				return driver.ConnectionParameter{}, malformed(address, err)
			}
			return driver.NewUDPConnection(local, "", 0), nil
		}
		if err := checkHost(parts[0]); err != nil {
			return driver.ConnectionParameter{}, malformed(address, err)
		}
		return driver.NewUDPConnection(defaultPort, parts[0], defaultPort), nil

	case 2, 3:
		local, err := parsePort(parts[0], defaultPort)
		if err != nil {
			return driver.ConnectionParameter{}, malformed(address, err)
		}
		host := parts[1]
		if host == "" {
			if len(parts) == 3 && parts[2] != "" {
				return driver.ConnectionParameter{}, malformed(address, fmt.Errorf("remote port without remote host"))
			}
			return driver.NewUDPConnection(local, "", 0), nil
		}
		if err := checkHost(host); err != nil {
			return driver.ConnectionParameter{}, malformed(address, err)
		}
		remote := defaultPort
		if len(parts) == 3 {
			if remote, err = parsePort(parts[2], defaultPort); err != nil {
				return driver.ConnectionParameter{}, malformed(address, err)
			}
		}
		return driver.NewUDPConnection(local, host, remote), nil

	default:
		return driver.ConnectionParameter{}, malformed(address, fmt.Errorf("too many segments"))
	}
}

func parseUSB(address string, defaultBaud int) (driver.ConnectionParameter, error) {
	if address == "" {
		return driver.NewUSBConnection(defaultBaud), nil
	}
	if !isDigits(address) {
		return driver.ConnectionParameter{}, malformed(address, fmt.Errorf("baud rate is not a decimal integer"))
	}
	baud, err := strconv.Atoi(address)
	if err != nil || baud <= 0 {
		return driver.ConnectionParameter{}, malformed(address, fmt.Errorf("baud rate out of range"))
	}
	return driver.NewUSBConnection(baud), nil
}

func parsePort(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	if !isDigits(s) {
		return 0, fmt.Errorf("port %q is not a decimal integer", s)
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %q out of range", s)
	}
	return port, nil
}

func checkHost(host string) error {
	if strings.ContainsAny(host, " \t/[]") {
		return fmt.Errorf("invalid host %q", host)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func malformed(address string, err error) error {
	return fmt.Errorf("%w: %q: %v", ErrMalformedAddress, address, err)
}
