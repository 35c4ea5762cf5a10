package acquisition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/rewired-gh/kbmeter/internal/logger"
)

// ErrPortNotFound is returned when discovery gives up without a matching port.
var ErrPortNotFound = errors.New("no matching serial port found")

// PortInfo describes one serial port on the host.
type PortInfo struct {
	Name         string `json:"name"`
	Product      string `json:"product,omitempty"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	USB          bool   `json:"usb"`
}

// Matches reports whether the port's USB product string contains match, ignoring case.
func (p PortInfo) Matches(match string) bool {
	return p.USB && strings.Contains(strings.ToLower(p.Product), strings.ToLower(match))
}

// Lister enumerates the serial ports currently attached.
type Lister func() ([]PortInfo, error)

// ListPorts enumerates the host's serial ports.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			Product:      d.Product,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			USB:          d.IsUSB,
		})
	}
	return ports, nil
}

// DiscoverPort looks for a port matching match, retrying up to attempts times with delay
// between scans.
func DiscoverPort(ctx context.Context, list Lister, match string, attempts int, delay time.Duration) (string, error) {
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ports, err := list()
		if err != nil {
			logger.Warn("Port scan %d/%d failed: %v", attempt, attempts, err)
		}
		for _, p := range ports {
			if p.Matches(match) {
				logger.Info("%s has been located at %s", match, p.Name)
				return p.Name, nil
			}
		}

		if attempt == attempts {
			break
		}
		logger.Warn("Failed to locate %s, will search again in %v (%d/%d)", match, delay, attempt, attempts)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", fmt.Errorf("%w: %q after %d attempts", ErrPortNotFound, match, attempts)
}

// OpenSerial opens port at baud and reads frames from it.
func OpenSerial(port string, baud int) (*LineSource, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return NewLineSource(p, "serial "+port), nil
}
