// Package find locates the USB serial port of a GPIB adapter.
package find

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

type FilterFn func(*enumerator.PortDetails) bool

// PrologixFilter matches the FTDI bridge inside the Prologix GPIB-USB.
func PrologixFilter(p *enumerator.PortDetails) bool {
	return strings.EqualFold(p.VID, "0403") && strings.EqualFold(p.PID, "6001")
}

// ArduinoFilter matches AR488 adapters built on an Arduino.
func ArduinoFilter(p *enumerator.PortDetails) bool {
	return strings.Contains(p.Product, "Arduino")
}

func SerialFilter(s string) FilterFn {
	return func(p *enumerator.PortDetails) bool { return p.SerialNumber == s }
}

// Find searches for a usb serial device. If filter is not nil,
// it is used to narrow choices down. The first device for which
// it returns true (if any) is chosen.
func Find(filter FilterFn) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerating serial ports: %w", err)
	}
	return Pick(ports, filter)
}

// Pick applies Find's selection rules to an already enumerated list.
func Pick(ports []*enumerator.PortDetails, filter FilterFn) (string, error) {
	var usb []*enumerator.PortDetails
	for _, p := range ports {
		if p.IsUSB {
			usb = append(usb, p)
		}
	}
	if filter != nil {
		for _, p := range usb {
			if filter(p) {
				return p.Name, nil
			}
		}
		return "", fmt.Errorf("no matching ttys found among %d usb ports", len(usb))
	}

	switch len(usb) {
	case 0:
		return "", fmt.Errorf("no usb ttys found")
	case 1:
		return usb[0].Name, nil
	}
	return "", fmt.Errorf("multiple ttys: %s", Describe(usb))
}

// Describe lists ports one per line.
func Describe(ports []*enumerator.PortDetails) string {
	s := make([]string, 0, len(ports))
	for _, p := range ports {
		s = append(s, fmt.Sprintf("%s vid/pid %s/%s product %q serial %s",
			p.Name, p.VID, p.PID, p.Product, p.SerialNumber))
	}
	return strings.Join(s, "\n")
}
