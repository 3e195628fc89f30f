package session

import (
	"strings"

	cdruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/duelbench/duelbench/types"
)

// listen registers the passive diagnostic listeners for the session's
// lifetime. Observation only; events never influence control flow until
// post-run triage.
func (c *Controller) listen() {
	chromedp.ListenTarget(c.ctx, func(ev any) {
		switch e := ev.(type) {
		case *cdruntime.EventConsoleAPICalled:
			var sev types.DiagSeverity
			switch e.Type {
			case cdruntime.APITypeError:
				sev = types.DiagError
			case cdruntime.APITypeWarning:
				sev = types.DiagWarning
			default:
				return
			}
			c.addDiag(types.DiagEvent{
				Session:  c.id,
				Severity: sev,
				Source:   "console",
				Message:  formatConsoleArgs(e.Args),
			})

		case *cdruntime.EventExceptionThrown:
			c.addDiag(types.DiagEvent{
				Session:  c.id,
				Severity: types.DiagError,
				Source:   "exception",
				Message:  formatException(e.ExceptionDetails),
			})
		}
	})
}

func (c *Controller) addDiag(ev types.DiagEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.diags) >= maxDiagEvents {
		c.dropped++
		return
	}
	c.diags = append(c.diags, ev)
	c.collector.IncDiagEvent()
}

// formatConsoleArgs renders console call arguments the way a human reads
// them in devtools: primitive values as text, objects by description.
func formatConsoleArgs(args []*cdruntime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		switch {
		case len(a.Value) > 0:
			parts = append(parts, strings.Trim(string(a.Value), `"`))
		case a.Description != "":
			parts = append(parts, a.Description)
		default:
			parts = append(parts, string(a.Type))
		}
	}
	return strings.Join(parts, " ")
}

func formatException(d *cdruntime.ExceptionDetails) string {
	if d == nil {
		return "uncaught exception"
	}
	msg := d.Text
	if d.Exception != nil && d.Exception.Description != "" {
		if msg != "" {
			msg += ": "
		}
		msg += d.Exception.Description
	}
	if msg == "" {
		msg = "uncaught exception"
	}
	return msg
}
