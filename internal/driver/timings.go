package driver

import (
	"encoding/json"
	"fmt"

	"classdex/internal/diag"
	"classdex/internal/observ"
)

type timingPayload struct {
	Kind    string               `json:"kind"`
	Classes int                  `json:"classes"`
	TotalMS float64              `json:"total_ms"`
	Phases  []observ.PhaseReport `json:"phases"`
}

// appendTimingDiagnostic records the phase report as an info diagnostic
// with the JSON form as its note. Timings are never dropped by the cap.
func appendTimingDiagnostic(bag *diag.Bag, payload timingPayload) {
	if bag == nil {
		return
	}
	if payload.Kind == "" {
		payload.Kind = "translate"
	}
	msg := fmt.Sprintf("timings (%s): total %.2f ms, %d classes", payload.Kind, payload.TotalMS, payload.Classes)

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	entry := diag.New(diag.SevInfo, diag.ObsTimings, "", msg).WithNote(string(data))
	if bag.Add(entry) {
		return
	}
	overflow := diag.NewBag(1)
	overflow.Add(entry)
	bag.Merge(overflow)
}
