// Package tlmt defines anonymous product telemetry. Events carry counts and
// durations only; submitted code never leaves the process through here.
package tlmt

import (
	"context"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

var (
	once       sync.Once
	identifier instanceIdentifier
)

type Event struct {
	AnonymousID string
	Name        string
	Properties  map[string]any
}

func NewEvent(name string, props map[string]any) Event {
	inst := generateInstanceID()

	ev := Event{
		AnonymousID: inst.id,
		Name:        name,
		Properties:  map[string]any{},
	}

	for k, v := range inst.meta {
		ev.Properties[k] = v
	}
	for k, v := range props {
		ev.Properties[k] = v
	}

	return ev
}

type Telemetry interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

type instanceIdentifier struct {
	id   string
	meta map[string]any
}

// generateInstanceID returns a process-scoped anonymous id. It is random per
// process start; no machine fingerprinting happens.
func generateInstanceID() instanceIdentifier {
	once.Do(func() {
		identifier.id = uuid.New().String()
		identifier.meta = map[string]any{
			"os":   runtime.GOOS,
			"arch": runtime.GOARCH,
		}
	})

	return identifier
}
