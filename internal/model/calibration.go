package model

import "fmt"

// LiftStudy is one externally measured lift experiment: a channel, an
// inclusive row range in the feature table, and the observed absolute lift
// over that range.
type LiftStudy struct {
	Channel string  `json:"channel"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Lift    float64 `json:"lift"`
}

// validateCalibration checks studies against the table and schema before any
// search work starts.
func validateCalibration(studies []LiftStudy, rows int, isPaidMedia func(string) bool) error {
	for i, st := range studies {
		if !isPaidMedia(st.Channel) {
			return fmt.Errorf("calibration study %d: %q is not a declared paid-media channel", i, st.Channel)
		}
		if st.Start < 0 || st.End >= rows || st.Start > st.End {
			return fmt.Errorf("calibration study %d (%s): invalid range [%d, %d] for %d rows", i, st.Channel, st.Start, st.End, rows)
		}
		if st.Lift == 0 {
			return fmt.Errorf("calibration study %d (%s): observed lift must be non-zero", i, st.Channel)
		}
	}
	return nil
}
