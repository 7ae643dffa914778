// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

/*
Package ppmslab runs transport measurements on a PPMS cryostat.

A measurement is a linear script: connect to the instruments, configure them,
wait for the cryostat to settle at each setpoint, then poll the instruments
while a field, angle or current is swept, and finally save what was recorded.
This package provides the two loops every script is built from, Settle and
Sweep, together with Dataset for the recorded columns and Output for writing
CSV and PNG files. The scripts themselves live in package experiment.
*/
package ppmslab
