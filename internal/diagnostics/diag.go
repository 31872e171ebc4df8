package diagnostics

import (
	"fmt"
	"time"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

const (
	CodeRXOverflow     = "RX.OVERFLOW"
	CodeFrameAbandoned = "FRAME.ABANDONED"
	CodeRefreshLate    = "REFRESH.LATE"
	CodeRefreshSlow    = "REFRESH.SLOW"
	CodeSerialMode     = "MODE.SERIAL"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

func RXOverflow(dropped uint64, capacity int) Diagnostic {
	return Diagnostic{
		Severity: Warn,
		Code:     CodeRXOverflow,
		Summary:  "Serial receive buffer overflowed; bytes were dropped",
		LikelyCauses: []string{
			"host sends frames faster than the main loop consumes them",
			"receive ring too small for the baud rate",
		},
		SuggestedFixes: []string{
			"pace frames on the host side",
			"raise ring.capacity (power of two)",
		},
		Evidence: map[string]any{"dropped": dropped, "capacity": capacity},
	}
}

func FrameAbandoned(received int, timeout time.Duration) Diagnostic {
	return Diagnostic{
		Severity: Warn,
		Code:     CodeFrameAbandoned,
		Summary:  "Partial frame timed out and was discarded",
		Detail:   fmt.Sprintf("%d of 64 row bytes arrived before a %s gap", received, timeout),
		LikelyCauses: []string{
			"host stopped mid frame or bytes were lost on the line",
		},
		Evidence: map[string]any{"received": received, "timeout_ms": timeout.Milliseconds()},
	}
}

func RefreshLate(layer int, took, period time.Duration) Diagnostic {
	return Diagnostic{
		Severity: Info,
		Code:     CodeRefreshLate,
		Summary:  "Layer firing overran its period",
		LikelyCauses: []string{
			"settle time too long for the layer rate",
			"host scheduler latency",
		},
		SuggestedFixes: []string{"lower refresh.settle_us or refresh.layer_hz"},
		Evidence: map[string]any{
			"layer":     layer,
			"took_us":   took.Microseconds(),
			"period_us": period.Microseconds(),
		},
	}
}

// RefreshSlow flags a configuration whose whole-cube refresh is slow enough
// to flicker.
func RefreshSlow(refreshHz float64) Diagnostic {
	return Diagnostic{
		Severity:       Warn,
		Code:           CodeRefreshSlow,
		Summary:        "Refresh rate below flicker threshold",
		Detail:         fmt.Sprintf("full cube refresh at %.1f Hz", refreshHz),
		SuggestedFixes: []string{"raise refresh.layer_hz to at least 400"},
		Evidence:       map[string]any{"refresh_hz": refreshHz},
	}
}

func SerialMode() Diagnostic {
	return Diagnostic{
		Severity: Info,
		Code:     CodeSerialMode,
		Summary:  "Serial data detected; idle patterns stopped",
	}
}
