// Package heading defines the read-only heading sensor interface that the
// motion control core polls.  Implementations live in subpackages; tests
// substitute their own fakes.
package heading

import (
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/angle"
)

// Nominal sensor report rate.  Both drivers aim for this; consumers must
// not assume it is exact.
const ReportFrequency = 100
const ReportInterval = time.Second / ReportFrequency

// Sample is one heading reading.  Yaw is absolute since sensor power-on;
// callers that care about relative rotation difference two samples.
type Sample struct {
	Time    time.Time
	Yaw     angle.PlusMinus180
	RateDps float64
}

type Sensor interface {
	// CurrentSample returns the most recent reading; zero Time means no
	// reading has arrived yet.
	CurrentSample() Sample

	// WaitForSampleAfter blocks until a reading newer than t is
	// available and returns it.
	WaitForSampleAfter(t time.Time) Sample
}
