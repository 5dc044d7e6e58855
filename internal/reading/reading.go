package reading

import (
	"encoding/json"
	"time"
)

// Reading is the canonical snapshot of one poll cycle. Nil telemetry fields
// were absent on the device and serialize as null.
type Reading struct {
	Date                      string       `json:"date"`
	PowerAc                   *json.Number `json:"powerAc"`
	PowerDc                   *json.Number `json:"powerDc"`
	VoltageAc                 *json.Number `json:"voltageAc"`
	VoltageDc                 *json.Number `json:"voltageDc"`
	YieldDay                  *json.Number `json:"yieldDay"`
	YieldYesterday            *json.Number `json:"yieldYesterday"`
	YieldMonth                *json.Number `json:"yieldMonth"`
	YieldYear                 *json.Number `json:"yieldYear"`
	YieldTotal                *json.Number `json:"yieldTotal"`
	ConsumptionPower          *json.Number `json:"consumptionPower"`
	ConsumptionYieldDay       *json.Number `json:"consumptionYieldDay"`
	ConsumptionYieldYesterday *json.Number `json:"consumptionYieldYesterday"`
	ConsumptionYieldMonth     *json.Number `json:"consumptionYieldMonth"`
	ConsumptionYieldYear      *json.Number `json:"consumptionYieldYear"`
	ConsumptionYieldTotal     *json.Number `json:"consumptionYieldTotal"`
	TotalPower                *json.Number `json:"totalPower"`

	takenAt time.Time
}

// TakenAt returns the device timestamp as a UTC instant
func (r Reading) TakenAt() time.Time {
	return r.takenAt
}

// TimestampRegister holds the device's local last-update time.
const TimestampRegister = "100"

// register binds a register code to its Reading field.
type register struct {
	code  string
	field func(*Reading) **json.Number
}

// registers is the fixed code -> field table, 101 to 116 in wire order.
var registers = []register{
	{"101", func(r *Reading) **json.Number { return &r.PowerAc }},
	{"102", func(r *Reading) **json.Number { return &r.PowerDc }},
	{"103", func(r *Reading) **json.Number { return &r.VoltageAc }},
	{"104", func(r *Reading) **json.Number { return &r.VoltageDc }},
	{"105", func(r *Reading) **json.Number { return &r.YieldDay }},
	{"106", func(r *Reading) **json.Number { return &r.YieldYesterday }},
	{"107", func(r *Reading) **json.Number { return &r.YieldMonth }},
	{"108", func(r *Reading) **json.Number { return &r.YieldYear }},
	{"109", func(r *Reading) **json.Number { return &r.YieldTotal }},
	{"110", func(r *Reading) **json.Number { return &r.ConsumptionPower }},
	{"111", func(r *Reading) **json.Number { return &r.ConsumptionYieldDay }},
	{"112", func(r *Reading) **json.Number { return &r.ConsumptionYieldYesterday }},
	{"113", func(r *Reading) **json.Number { return &r.ConsumptionYieldMonth }},
	{"114", func(r *Reading) **json.Number { return &r.ConsumptionYieldYear }},
	{"115", func(r *Reading) **json.Number { return &r.ConsumptionYieldTotal }},
	{"116", func(r *Reading) **json.Number { return &r.TotalPower }},
}
