package ppms

import "fmt"

// StatusWord is the packed system status returned by GETDAT? bit 0.
type StatusWord uint32

// Temperature returns bits 0-3.
func (w StatusWord) Temperature() TemperatureStatus { return TemperatureStatus(w & 0xf) }

// Field returns bits 4-7.
func (w StatusWord) Field() FieldStatus { return FieldStatus(w >> 4 & 0xf) }

// Chamber returns bits 8-11.
func (w StatusWord) Chamber() ChamberStatus { return ChamberStatus(w >> 8 & 0xf) }

// Position returns bits 12-15.
func (w StatusWord) Position() PositionStatus { return PositionStatus(w >> 12 & 0xf) }

// TemperatureStatus is the temperature controller state.
type TemperatureStatus int

const (
	TempUnknown         TemperatureStatus = 0
	TempStable          TemperatureStatus = 1
	TempTracking        TemperatureStatus = 2
	TempNear            TemperatureStatus = 5
	TempChasing         TemperatureStatus = 6
	TempFilling         TemperatureStatus = 7
	TempStandby         TemperatureStatus = 10
	TempControlDisabled TemperatureStatus = 13
	TempCannotComplete  TemperatureStatus = 14
	TempFailure         TemperatureStatus = 15
)

var tempStatusDesc = map[TemperatureStatus]string{
	TempUnknown:         "unknown",
	TempStable:          "stable",
	TempTracking:        "tracking",
	TempNear:            "near",
	TempChasing:         "chasing",
	TempFilling:         "filling/emptying reservoir",
	TempStandby:         "standby",
	TempControlDisabled: "control disabled",
	TempCannotComplete:  "cannot complete",
	TempFailure:         "failure",
}

func (s TemperatureStatus) String() string { return describe(tempStatusDesc, s) }

// FieldStatus is the magnet controller state.
type FieldStatus int

const (
	FieldUnknown       FieldStatus = 0
	FieldPersistent    FieldStatus = 1
	FieldSwitchWarming FieldStatus = 2
	FieldSwitchCooling FieldStatus = 3
	FieldHoldingDriven FieldStatus = 4
	FieldIterating     FieldStatus = 5
	FieldCharging      FieldStatus = 6
	FieldDischarging   FieldStatus = 7
	FieldCurrentError  FieldStatus = 8
	FieldFailure       FieldStatus = 15
)

var fieldStatusDesc = map[FieldStatus]string{
	FieldUnknown:       "unknown",
	FieldPersistent:    "stable (persistent)",
	FieldSwitchWarming: "switch warming",
	FieldSwitchCooling: "switch cooling",
	FieldHoldingDriven: "holding (driven)",
	FieldIterating:     "iterating",
	FieldCharging:      "charging",
	FieldDischarging:   "discharging",
	FieldCurrentError:  "current error",
	FieldFailure:       "failure",
}

func (s FieldStatus) String() string { return describe(fieldStatusDesc, s) }

// ChamberStatus is the sample chamber state.
type ChamberStatus int

const (
	ChamberUnknown ChamberStatus = 0
	ChamberPurged  ChamberStatus = 1
	ChamberVented  ChamberStatus = 2
	ChamberSealed  ChamberStatus = 3
	ChamberPurging ChamberStatus = 4
	ChamberVenting ChamberStatus = 5
	ChamberPumping ChamberStatus = 8
	ChamberFailure ChamberStatus = 15
)

var chamberStatusDesc = map[ChamberStatus]string{
	ChamberUnknown: "unknown",
	ChamberPurged:  "purged and sealed",
	ChamberVented:  "vented and sealed",
	ChamberSealed:  "sealed",
	ChamberPurging: "purging",
	ChamberVenting: "venting",
	ChamberPumping: "pumping continuously",
	ChamberFailure: "failure",
}

func (s ChamberStatus) String() string { return describe(chamberStatusDesc, s) }

// PositionStatus is the sample rotator state.
type PositionStatus int

const (
	PositionUnknown PositionStatus = 0
	PositionStopped PositionStatus = 1
	PositionMoving  PositionStatus = 5
	PositionLimit   PositionStatus = 8
	PositionIndex   PositionStatus = 9
	PositionFailure PositionStatus = 15
)

var positionStatusDesc = map[PositionStatus]string{
	PositionUnknown: "unknown",
	PositionStopped: "stopped",
	PositionMoving:  "moving",
	PositionLimit:   "at limit switch",
	PositionIndex:   "at index switch",
	PositionFailure: "failure",
}

func (s PositionStatus) String() string { return describe(positionStatusDesc, s) }

func describe[K ~int](m map[K]string, k K) string {
	if s, ok := m[k]; ok {
		return s
	}
	return fmt.Sprintf("code %d", int(k))
}
