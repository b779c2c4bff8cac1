package dashboard

import "strings"

// onHubEvent counts every foreign hub event and forwards it to dashboard
// sessions. Events carrying the module prefix are dropped so the dashboard
// never relays its own traffic.
func (d *Dashboard) onHubEvent(eventType string, args []any) {
	if strings.HasPrefix(eventType, Name) {
		return
	}
	d.counter.Inc()
	d.metrics.EventsTotal.Inc()

	_, scope := d.channel()
	if scope == nil {
		return
	}
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, eventType)
	payload = append(payload, encodableArgs(args)...)
	scope.Broadcast(EventHubEvent, payload)
}
