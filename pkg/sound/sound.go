// Package sound plays short synthesized cue tones so the operator can
// hear state changes without looking at the screen.  No speaker is not
// an error: cues degrade to log lines.
package sound

import (
	"fmt"
	"math"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

type Cue int

const (
	CueSelect Cue = iota // mission menu moved
	CueReady             // mission armed, waiting for start
	CueDone              // mission finished
	CueError             // abort / fault
)

func (c Cue) String() string {
	switch c {
	case CueSelect:
		return "select"
	case CueReady:
		return "ready"
	case CueDone:
		return "done"
	case CueError:
		return "error"
	default:
		return fmt.Sprintf("cue(%d)", int(c))
	}
}

const sampleRate = beep.SampleRate(44100)

// InitSound starts the playback worker and returns its input channel.
// Cues never block the caller; a cue arriving while another is playing
// replaces it.
func InitSound() chan Cue {
	cues := make(chan Cue, 4)
	go func() {
		defer func() {
			recover()
			for c := range cues {
				fmt.Println("SOUND: unable to play", c)
			}
		}()
		err := speaker.Init(sampleRate, sampleRate.N(time.Second/5))
		if err != nil {
			fmt.Println("SOUND: failed to open speaker:", err)
			for c := range cues {
				fmt.Println("SOUND: unable to play", c)
			}
		}
		var ctrl *beep.Ctrl
		for c := range cues {
			if ctrl != nil {
				speaker.Lock()
				ctrl.Paused = true
				ctrl.Streamer = nil
				speaker.Unlock()
			}
			ctrl = &beep.Ctrl{Streamer: streamerFor(c)}
			speaker.Play(ctrl)
		}
	}()
	return cues
}

func streamerFor(c Cue) beep.Streamer {
	switch c {
	case CueSelect:
		return tone(880, 80*time.Millisecond)
	case CueReady:
		return beep.Seq(tone(660, 100*time.Millisecond), tone(880, 150*time.Millisecond))
	case CueDone:
		return beep.Seq(
			tone(523, 120*time.Millisecond),
			tone(659, 120*time.Millisecond),
			tone(784, 200*time.Millisecond),
		)
	case CueError:
		return tone(220, 400*time.Millisecond)
	default:
		return tone(440, 100*time.Millisecond)
	}
}

// tone is a fixed-length sine streamer.  Amplitude is kept well below
// clipping; the little speaker distorts badly at full scale.
func tone(freqHz float64, d time.Duration) beep.Streamer {
	total := sampleRate.N(d)
	pos := 0
	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= total {
			return 0, false
		}
		for i := range samples {
			if pos >= total {
				return i, true
			}
			v := 0.3 * math.Sin(2*math.Pi*freqHz*float64(pos)/float64(sampleRate))
			samples[i][0] = v
			samples[i][1] = v
			pos++
		}
		return len(samples), true
	})
}
