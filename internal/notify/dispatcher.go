package notify

import (
	"context"

	"github.com/charmbracelet/log"
)

// Report counts delivery attempts.
type Report struct {
	Sent   int
	Failed int
}

// Dispatcher fans notifications out to every sender. A failing sender never
// stops delivery to the others.
type Dispatcher struct {
	Senders []Sender
	Log     *log.Logger
}

func (d *Dispatcher) Dispatch(ctx context.Context, items []Notification) Report {
	lg := d.Log
	if lg == nil {
		lg = log.Default()
	}
	var rep Report
	for _, n := range items {
		for _, s := range d.Senders {
			if err := s.Send(ctx, n); err != nil {
				rep.Failed++
				lg.Warn("notification failed", "sender", s.Name(), "title", n.Title, "err", err)
				continue
			}
			rep.Sent++
		}
	}
	return rep
}

// LogSender writes every notification to the log. It is always configured
// so runs without any remote sender still surface findings.
type LogSender struct {
	Log *log.Logger
}

func (LogSender) Name() string { return "log" }

func (s LogSender) Send(_ context.Context, n Notification) error {
	lg := s.Log
	if lg == nil {
		lg = log.Default()
	}
	lg.Info(n.Title+": "+n.Body, "url", n.URL)
	return nil
}
