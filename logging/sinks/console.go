// Package sinks provides the stock logging sinks.
package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"idle-engine/core/logging"
)

// Console writes one line per event to the configured writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Write(event logging.Event) error {
	if c == nil || c.out == nil {
		return nil
	}
	payload := ""
	if event.Payload != nil {
		data, err := json.Marshal(event.Payload)
		if err == nil {
			payload = " " + string(data)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s step=%d %s %s/%s%s\n",
		event.Time.Format("15:04:05.000"),
		event.Step,
		event.Type,
		event.Subject.Kind,
		event.Subject.ID,
		payload,
	)
	return err
}

func (c *Console) Close(context.Context) error { return nil }

var _ logging.Sink = (*Console)(nil)
