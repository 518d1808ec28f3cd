// Package notification relays raised alerts to configured channels. The
// service has no UI, so this is how a detection run becomes visible
// outside the API: the console in development, the structured log in
// production.
package notification

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openclinic/healthdesk/internal/record"
	"github.com/openclinic/healthdesk/internal/shared/events"
	"github.com/openclinic/healthdesk/internal/shared/types"
)

// Channel delivers one alert notification.
type Channel interface {
	Name() string
	Notify(ctx context.Context, alert record.PatternAlert) error
}

// Stats counts deliveries per channel.
type Stats struct {
	Delivered map[string]int64 `json:"delivered"`
	Failed    map[string]int64 `json:"failed"`
}

// Notifier fans raised alerts out to its channels. Alerts below the
// minimum severity are dropped silently.
type Notifier struct {
	channels    []Channel
	minSeverity record.AlertSeverity
	log         *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a notifier delivering through the given channels.
func New(minSeverity record.AlertSeverity, log *zap.Logger, channels ...Channel) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		channels:    channels,
		minSeverity: minSeverity,
		log:         log,
		stats: Stats{
			Delivered: map[string]int64{},
			Failed:    map[string]int64{},
		},
	}
}

// Subscribe attaches the notifier to alert.raised events on the bus.
func (n *Notifier) Subscribe(bus *events.Bus) {
	bus.Subscribe("alert.raised", func(ctx context.Context, e events.Event) {
		alert := alertFromEvent(e)
		n.Notify(ctx, alert)
	})
}

// Notify delivers one alert through every channel. A failing channel is
// logged and counted; it never blocks the others.
func (n *Notifier) Notify(ctx context.Context, alert record.PatternAlert) {
	if !meetsMinSeverity(alert.Severity, n.minSeverity) {
		return
	}

	for _, ch := range n.channels {
		err := ch.Notify(ctx, alert)

		n.mu.Lock()
		if err != nil {
			n.stats.Failed[ch.Name()]++
		} else {
			n.stats.Delivered[ch.Name()]++
		}
		n.mu.Unlock()

		if err != nil {
			n.log.Warn("alert notification failed",
				zap.String("channel", ch.Name()),
				zap.String("alert_id", alert.ID.String()),
				zap.Error(err))
		}
	}
}

// GetStats returns a copy of the delivery counters.
func (n *Notifier) GetStats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := Stats{
		Delivered: make(map[string]int64, len(n.stats.Delivered)),
		Failed:    make(map[string]int64, len(n.stats.Failed)),
	}
	for k, v := range n.stats.Delivered {
		out.Delivered[k] = v
	}
	for k, v := range n.stats.Failed {
		out.Failed[k] = v
	}
	return out
}

func meetsMinSeverity(severity, minimum record.AlertSeverity) bool {
	order := map[record.AlertSeverity]int{
		record.AlertSeverityLow:    1,
		record.AlertSeverityMedium: 2,
		record.AlertSeverityHigh:   3,
	}
	return order[severity] >= order[minimum]
}

// alertFromEvent rebuilds the alert fields carried on the bus. Events
// carry untyped data, so missing fields come back zero-valued.
func alertFromEvent(e events.Event) record.PatternAlert {
	var alert record.PatternAlert
	alert.ID = types.ID(stringField(e, "alert_id"))
	alert.PatientID = types.ID(stringField(e, "patient_id"))
	alert.Type = record.AlertType(stringField(e, "type"))
	alert.Severity = record.AlertSeverity(stringField(e, "severity"))
	alert.Message = stringField(e, "message")
	return alert
}

func stringField(e events.Event, key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	if v, ok := e.Data[key].(fmt.Stringer); ok {
		return v.String()
	}
	return ""
}
