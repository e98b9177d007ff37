// Package features turns raw hourly cooling telemetry into a leakage-safe
// feature frame and a forward-looking heat target.
//
// Every feature at row t is computed from rows at or before t; the target at
// row t is the sum of the instantaneous heat flux over rows t+1..t+K. Rows
// that lack the history a feature needs, and the trailing K rows that have no
// complete target, are dropped.
package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/HatiCode/heatcast/pkg/adapters"
)

// Signal identifies one base telemetry column.
// Key is the short name used in feature names, Header the column label of the
// upstream CSV export.
type Signal struct {
	Key    string
	Header string
}

// Signals lists the seven base signals in canonical order.
var Signals = []Signal{
	{Key: "workload", Header: "Server_Workload(%)"},
	{Key: "outlet", Header: "Outlet_Temperature(°C)"},
	{Key: "inlet", Header: "Inlet_Temperature(°C)"},
	{Key: "cooling_power", Header: "Cooling_Unit_Power_Consumption(kW)"},
	{Key: "chiller_usage", Header: "Chiller_Usage(%)"},
	{Key: "ahu_usage", Header: "AHU_Usage(%)"},
	{Key: "ambient", Header: "Ambient_Temperature(°C)"},
}

// TelemetryRow is one hourly observation. Its position in the input slice is
// its timestamp: the first row is hour 1.
type TelemetryRow struct {
	Workload     float64 `json:"workload"`
	Outlet       float64 `json:"outlet"`
	Inlet        float64 `json:"inlet"`
	CoolingPower float64 `json:"cooling_power"`
	ChillerUsage float64 `json:"chiller_usage"`
	AHUUsage     float64 `json:"ahu_usage"`
	Ambient      float64 `json:"ambient"`
}

// values returns the row's signals in the order of Signals.
func (r TelemetryRow) values() [7]float64 {
	return [7]float64{r.Workload, r.Outlet, r.Inlet, r.CoolingPower, r.ChillerUsage, r.AHUUsage, r.Ambient}
}

func (r *TelemetryRow) set(i int, v float64) {
	switch i {
	case 0:
		r.Workload = v
	case 1:
		r.Outlet = v
	case 2:
		r.Inlet = v
	case 3:
		r.CoolingPower = v
	case 4:
		r.ChillerUsage = v
	case 5:
		r.AHUUsage = v
	case 6:
		r.Ambient = v
	}
}

// FromDataFrame maps adapter rows onto telemetry rows. A signal may appear
// under its short key or its CSV header; any other columns are ignored.
func FromDataFrame(df adapters.DataFrame) ([]TelemetryRow, error) {
	rows := make([]TelemetryRow, len(df.Rows))
	for i, raw := range df.Rows {
		for s, sig := range Signals {
			v, ok := raw[sig.Key]
			if !ok {
				v, ok = raw[sig.Header]
			}
			if !ok {
				return nil, &MissingColumnError{Column: sig.Header, Row: i}
			}
			f, err := toFloat(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, sig.Key, err)
			}
			rows[i].set(s, f)
		}
	}
	return rows, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return math.NaN(), nil
		}
		return strconv.ParseFloat(s, 64)
	case nil:
		return math.NaN(), nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
