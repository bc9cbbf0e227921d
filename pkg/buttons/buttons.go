// Package buttons turns the hub's polled button bitmap into edge
// events on a channel.
package buttons

import (
	"context"
	"fmt"
	"time"

	"github.com/tablebots-team/tablebot/go-pilot/pkg/hub"
)

const defaultPollInterval = 20 * time.Millisecond

// Event is one button edge.  Pressed=true is the down edge.
type Event struct {
	Time    time.Time
	Button  hub.ButtonState
	Pressed bool
}

func (e Event) String() string {
	edge := "released"
	if e.Pressed {
		edge = "pressed"
	}
	return fmt.Sprintf("%v %s", e.Button, edge)
}

// Reader is the slice of the hub the poller needs.
type Reader interface {
	Buttons() (hub.ButtonState, error)
}

type Poller struct {
	hub      Reader
	interval time.Duration

	// Events delivers edges in press order.  The channel is buffered;
	// if the consumer falls behind, edges are dropped rather than
	// stalling the poll loop.
	Events chan Event
}

func NewPoller(h Reader) *Poller {
	return &Poller{
		hub:      h,
		interval: defaultPollInterval,
		Events:   make(chan Event, 16),
	}
}

var allButtons = []hub.ButtonState{
	hub.ButtonLeft,
	hub.ButtonCenter,
	hub.ButtonRight,
	hub.ButtonStart,
}

// Run polls until the context ends.  A read error is logged and
// retried; the hub occasionally NAKs mid-transfer and the next poll
// almost always succeeds.
func (p *Poller) Run(ctx context.Context) {
	var last hub.ButtonState
	for ctx.Err() == nil {
		state, err := p.hub.Buttons()
		if err != nil {
			fmt.Printf("BUTTONS: read failed: %v\n", err)
		} else if state != last {
			now := time.Now()
			for _, b := range allButtons {
				if state.Pressed(b) == last.Pressed(b) {
					continue
				}
				ev := Event{Time: now, Button: b, Pressed: state.Pressed(b)}
				select {
				case p.Events <- ev:
				default:
					fmt.Printf("BUTTONS: dropped event %v\n", ev)
				}
			}
			last = state
		}
		time.Sleep(p.interval)
	}
}
