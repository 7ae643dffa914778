// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package gpib

import (
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Instrument is a handle to one device on a controller's bus. Every
// operation locks the controller and readdresses it if another instrument
// was used last.
type Instrument struct {
	c       *Controller
	pad     int
	sad     int // 0 if unset
	addrArg string
}

// InstrumentOption applies an option to an Instrument.
type InstrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	sad   int
	clear bool
}

// WithSecondaryAddress sets a secondary address, which must be in the range of
// 96 and 126, inclusive.
func WithSecondaryAddress(addr int) InstrumentOption {
	return func(ic *instrumentConfig) { ic.sad = addr }
}

// WithClear sends the Selected Device Clear (SDC) message once the
// instrument is addressed.
func WithClear() InstrumentOption {
	return func(ic *instrumentConfig) { ic.clear = true }
}

// Instrument returns a handle for the device at primary address pad.
func (c *Controller) Instrument(pad int, opts ...InstrumentOption) (*Instrument, error) {
	var ic instrumentConfig
	for _, opt := range opts {
		opt(&ic)
	}
	if !isPrimaryAddressValid(pad) {
		return nil, fmt.Errorf("invalid primary address %d (must by 0-30)", pad)
	}
	addrArg := strconv.Itoa(pad)
	if ic.sad != 0 {
		if !isSecondaryAddressValid(ic.sad) {
			return nil, fmt.Errorf("invalid secondary address %d (must be 96-126)", ic.sad)
		}
		addrArg = fmt.Sprintf("%d %d", pad, ic.sad)
	}
	inst := &Instrument{c: c, pad: pad, sad: ic.sad, addrArg: addrArg}
	if ic.clear {
		if err := inst.Clear(); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// Address returns the primary and secondary address; sad is 0 when unset.
func (i *Instrument) Address() (pad, sad int) { return i.pad, i.sad }

func (i *Instrument) String() string { return "gpib:" + i.addrArg }

// Command formats according to a format specifier if provided and sends a
// SCPI/ASCII command to the instrument. All leading and trailing whitespace
// is removed before appending the USB terminator to the command sent to the
// Prologix.
func (i *Instrument) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.address(i.addrArg); err != nil {
		return err
	}
	cmd = fmt.Sprintf("%s%c", strings.TrimSpace(cmd), c.usbTerm)
	if c.debug {
		log.Printf("cmd %q (%x)", cmd, cmd)
	}
	return c.write(cmd)
}

// Query sends cmd to the instrument and returns the reply, including its
// terminator. When data from host is received over USB, the Prologix
// controller removes all non-escaped LF, CR and ESC characters and appends the
// GPIB terminator before sending the data to instruments.
func (i *Instrument) Query(cmd string) (string, error) {
	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.address(i.addrArg); err != nil {
		return "", err
	}
	cmd = fmt.Sprintf("%s%c", strings.TrimSpace(cmd), c.usbTerm)
	if c.debug {
		log.Printf("query: %q", cmd)
	}
	if err := c.write(cmd); err != nil {
		return "", fmt.Errorf("error writing command: %w", err)
	}
	// If read-after-write is disabled, need to tell the Prologix controller to
	// read.
	if !c.auto {
		readCmd := "++read eoi"
		if err := c.write(fmt.Sprintf("%s%c", readCmd, c.usbTerm)); err != nil {
			return "", fmt.Errorf("error sending `%s` command: %w", readCmd, err)
		}
	}
	return c.readLine()
}

// Clear sends the Selected Device Clear (SDC) message.
func (i *Instrument) Clear() error { return i.controllerCommand("clr") }

// Local returns the instrument to front panel control.
func (i *Instrument) Local() error { return i.controllerCommand("loc") }

// Trigger sends the Group Execute Trigger (GET) message.
func (i *Instrument) Trigger() error { return i.controllerCommand("trg") }

// SerialPoll returns the instrument's status byte.
func (i *Instrument) SerialPoll() (byte, error) {
	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.address(i.addrArg); err != nil {
		return 0, err
	}
	s, err := c.queryController("spoll")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("parse status byte %q: %w", s, err)
	}
	return byte(v), nil
}

func (i *Instrument) controllerCommand(cmd string) error {
	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.address(i.addrArg); err != nil {
		return err
	}
	return c.commandController(cmd)
}
