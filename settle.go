// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ppmslab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrSettleTimeout is returned by Settle when SettleConfig.Timeout elapses.
var ErrSettleTimeout = errors.New("timed out waiting to settle")

// SettleConfig paces a Settle loop.
type SettleConfig struct {
	InitialDelay time.Duration // before the first poll, so the setpoint is registered
	Interval     time.Duration // between polls
	Timeout      time.Duration // zero waits forever
	Quiet        bool          // don't log each poll
}

// DefaultSettle is the pacing used by the lab scripts.
var DefaultSettle = SettleConfig{
	InitialDelay: 500 * time.Millisecond,
	Interval:     time.Second,
}

// Settle polls until done reports true for a reading and returns that
// reading. name labels the log lines.
func Settle[T any](
	ctx context.Context,
	name string,
	cfg SettleConfig,
	poll func() (T, error),
	done func(T) bool,
) (T, error) {
	var zero T
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := Sleep(ctx, cfg.InitialDelay); err != nil {
		return zero, settleErr(name, err)
	}
	for n := 1; ; n++ {
		r, err := poll()
		if err != nil {
			return zero, fmt.Errorf("%s: poll %d: %w", name, n, err)
		}
		if !cfg.Quiet {
			log.Printf("%s: %v", name, r)
		}
		if done(r) {
			return r, nil
		}
		if err := Sleep(ctx, cfg.Interval); err != nil {
			return r, settleErr(name, err)
		}
	}
}

func settleErr(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", name, ErrSettleTimeout)
	}
	return fmt.Errorf("%s: %w", name, err)
}

// Countdown waits d, logging the remaining time once a second.
func Countdown(ctx context.Context, what string, d time.Duration) error {
	for left := d; left > 0; left -= time.Second {
		log.Printf("%s, remaining time %s", what, left.Round(time.Second))
		step := time.Second
		if left < step {
			step = left
		}
		if err := Sleep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// Sleep waits d or until ctx is done. A non-positive d only checks ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
