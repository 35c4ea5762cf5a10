package acquisition

import (
	"context"
	"errors"
	"testing"
)

func TestPortInfoMatches(t *testing.T) {
	tests := []struct {
		name  string
		port  PortInfo
		match string
		want  bool
	}{
		{"arduino uno", PortInfo{Name: "/dev/ttyACM0", Product: "Arduino Uno", USB: true}, "Arduino", true},
		{"case insensitive", PortInfo{Name: "COM3", Product: "ARDUINO NANO", USB: true}, "arduino", true},
		{"other usb device", PortInfo{Name: "/dev/ttyUSB0", Product: "CP2102 USB to UART", USB: true}, "Arduino", false},
		{"not usb", PortInfo{Name: "/dev/ttyS0", Product: "Arduino", USB: false}, "Arduino", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.port.Matches(tt.match); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiscoverPort_RetriesUntilFound(t *testing.T) {
	calls := 0
	list := func() ([]PortInfo, error) {
		calls++
		switch calls {
		case 1:
			return nil, errors.New("enumeration failed")
		case 2:
			return []PortInfo{{Name: "/dev/ttyS0"}}, nil
		default:
			return []PortInfo{{Name: "/dev/ttyS0"}, {Name: "/dev/ttyACM0", Product: "Arduino Uno", USB: true}}, nil
		}
	}

	name, err := DiscoverPort(context.Background(), list, "Arduino", 5, 0)
	if err != nil {
		t.Fatalf("DiscoverPort failed: %v", err)
	}
	if name != "/dev/ttyACM0" || calls != 3 {
		t.Errorf("Expected /dev/ttyACM0 on the third scan, got %q after %d scans", name, calls)
	}
}

func TestDiscoverPort_GivesUp(t *testing.T) {
	calls := 0
	list := func() ([]PortInfo, error) {
		calls++
		return nil, nil
	}

	_, err := DiscoverPort(context.Background(), list, "Arduino", 3, 0)
	if !errors.Is(err, ErrPortNotFound) {
		t.Errorf("Expected ErrPortNotFound, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 scans, got %d", calls)
	}
}

func TestDiscoverPort_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	list := func() ([]PortInfo, error) { return nil, nil }
	if _, err := DiscoverPort(ctx, list, "Arduino", 3, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
