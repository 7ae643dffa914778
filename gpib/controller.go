// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package gpib

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Controller models a Prologix-compatible GPIB controller-in-charge. A single
// controller is shared by every instrument on its bus; see Instrument.
type Controller struct {
	mu          sync.Mutex
	rw          io.ReadWriter
	br          *bufio.Reader
	addressed   string // last ++addr argument sent, empty if none
	auto        bool
	gpibTerm    GpibTerm
	usbTerm     byte
	eotChar     byte
	readTimeout time.Duration
	writeDelay  time.Duration
	debug       bool // if true, log controller commands before sending. Set via WithDebug().
	ar488       bool // compatibility with Arduino AR488 - see WithAR488 documentation for details.
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// NewController configures the adapter behind rw as a GPIB controller-in-charge.
// rw is usually a virtual COM port or a TCP connection to a GPIB-ETHERNET
// adapter. No instrument is addressed until the first Instrument call.
func NewController(rw io.ReadWriter, opts ...ControllerOption) (*Controller, error) {
	c := Controller{
		rw:          rw,
		br:          bufio.NewReader(rw),
		auto:        false,
		gpibTerm:    AppendCRLF,
		usbTerm:     '\n',
		eotChar:     '\n',
		readTimeout: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&c)
	}

	if c.readTimeout < time.Millisecond || c.readTimeout > 3*time.Second {
		return nil, fmt.Errorf("invalid read timeout %s (must be 1ms-3s)", c.readTimeout)
	}

	cmds := []string{}
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // Disable saving of configuration parameters in EPROM
		)
	}
	cmds = append(cmds,
		"mode 1", // Switch to controller mode.
		"auto 0", // Turn off read-after-write and address instrument to listen.
		"eoi 1",  // Enable EOI assertion with last character.
		fmt.Sprintf("eos %d", c.gpibTerm),
		fmt.Sprintf("read_tmo_ms %d", c.readTimeout.Milliseconds()),
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1", // Append character when EOI detected?
	)
	if !c.ar488 {
		cmds = append(cmds, "savecfg 1")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cmd := range cmds {
		if err := c.commandController(cmd); err != nil {
			return nil, fmt.Errorf("configure controller: %w", err)
		}
	}
	return &c, nil
}

// WithDebug causes commands and responses to be logged.
func WithDebug() ControllerOption { return func(c *Controller) { c.debug = true } }

// WithAR488 slightly alters the init commands, for compatiblity with the
// Arduino-based AR488. Specifically, we do not emit 'verbose 0', nor do
// we toggle savecfg.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// WithWriteDelay pauses for d before every write to the adapter. Some older
// instruments drop commands that arrive back to back.
func WithWriteDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.writeDelay = d }
}

// WithReadTimeout sets the adapter's inter-character read timeout.
func WithReadTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.readTimeout = d }
}

// WithGPIBTermination sets the terminator the adapter appends to
// instrument-bound data.
func WithGPIBTermination(term GpibTerm) ControllerOption {
	return func(c *Controller) { c.gpibTerm = term }
}

// CommandController sends the given command to the Prologix controller. To
// indicate this is a command for the Prologix controller, thereby not
// transmitting to the instrument over GPIB, two plus signs `++` are prepended.
// Addtionally, a new line is appended to act as the USB termination character.
func (c *Controller) CommandController(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandController(cmd)
}

// QueryController sends the given command to the Prologix controller and
// returns its response with surrounding whitespace removed.
func (c *Controller) QueryController(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryController(cmd)
}

func (c *Controller) commandController(cmd string) error {
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	if c.debug {
		log.Printf("cmd %q (%2x)", cmd, cmd)
	}
	return c.write(cmd)
}

func (c *Controller) queryController(cmd string) (string, error) {
	if err := c.commandController(cmd); err != nil {
		return "", err
	}
	s, err := c.readLine()
	if c.debug {
		log.Printf("read data: %q", s)
	}
	return strings.TrimSpace(s), err
}

func (c *Controller) write(s string) error {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	_, err := io.WriteString(c.rw, s)
	return err
}

// readLine reads up to and including the EOT character. The buffered reader
// lives as long as the controller so bytes read past one reply are kept for
// the next.
func (c *Controller) readLine() (string, error) {
	s, err := c.br.ReadString(c.eotChar)
	if err == io.EOF && len(s) > 0 {
		log.Printf("found EOF")
		return s, nil
	}
	return s, err
}

// address makes addr the listener/talker, sending ++addr only when it is
// not already selected. Caller must hold c.mu.
func (c *Controller) address(addr string) error {
	if c.addressed == addr {
		return nil
	}
	if err := c.commandController("addr " + addr); err != nil {
		c.addressed = ""
		return fmt.Errorf("address %s: %w", addr, err)
	}
	c.addressed = addr
	return nil
}

// GpibTerm provides the type for the available GPIB terminators.
type GpibTerm int

// Available GPIB terminators for the Prologix Controller.
const (
	AppendCRLF GpibTerm = iota
	AppendCR
	AppendLF
	AppendNothing
)

var gpibTermDesc = map[GpibTerm]string{
	AppendCRLF:    `Append CR+LF (\r\n) to instrument commands`,
	AppendCR:      `Append CR (\r) to instrument commands`,
	AppendLF:      `Append LF (\n) to instrument commands`,
	AppendNothing: `Do not append anything to instrument commands`,
}

func (term GpibTerm) String() string {
	return gpibTermDesc[term]
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0 and
// 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

// isSecondaryAddressValid checks that the secondary GPIB address is between 96
// and 126, inclusive.
func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
