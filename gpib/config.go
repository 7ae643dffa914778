// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package gpib

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/query"
)

// adapterQuerier routes query.Querier calls to the adapter itself rather than
// the addressed instrument. Caller must hold the controller lock.
type adapterQuerier struct{ c *Controller }

func (q adapterQuerier) Query(cmd string) (string, error) {
	return q.c.queryController(cmd)
}

func (c *Controller) adapter() query.Querier { return adapterQuerier{c} }

// Version returns the adapter's firmware version string.
func (c *Controller) Version() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return query.String(c.adapter(), "ver")
}

// ReadAfterWrite reports whether the adapter is in auto (read-after-write)
// mode.
func (c *Controller) ReadAfterWrite() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return query.Bool(c.adapter(), "auto")
}

// ReadTimeout returns the adapter's read timeout in milliseconds.
func (c *Controller) ReadTimeout() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return query.Int(c.adapter(), "read_tmo_ms")
}

// ServiceRequest reports whether SRQ is asserted on the bus.
func (c *Controller) ServiceRequest() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return query.Bool(c.adapter(), "srq")
}

// InstrumentAddress returns the address currently configured in the adapter.
// sad is 0 when no secondary address is set.
func (c *Controller) InstrumentAddress() (pad, sad int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := query.String(c.adapter(), "addr")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, 0, fmt.Errorf("unexpected address reply %q", s)
	}
	if pad, err = strconv.Atoi(fields[0]); err != nil {
		return 0, 0, fmt.Errorf("parse primary address %q: %w", s, err)
	}
	if len(fields) == 2 {
		if sad, err = strconv.Atoi(fields[1]); err != nil {
			return 0, 0, fmt.Errorf("parse secondary address %q: %w", s, err)
		}
	}
	return pad, sad, nil
}
