// Package tlmt sends anonymous usage events.
package tlmt

import (
	"context"
	"crypto/sha256"
	"fmt"
	"maps"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"
)

var (
	once       sync.Once
	identifier machineIdentifier
)

// Event names
const (
	EventParseCompleted = "parse_completed"
	EventParseFailed    = "parse_failed"
	EventWorkerStarted  = "worker_started"
)

type Event struct {
	AnonymousID string
	Name        string
	Properties  map[string]any
}

// NewEvent builds an event tagged with the host's anonymous id and platform
// details. props override the platform properties.
func NewEvent(name string, props map[string]any) Event {
	id := generateMachineID()

	ev := Event{
		AnonymousID: id.id,
		Name:        name,
		Properties:  maps.Clone(id.meta),
	}

	maps.Copy(ev.Properties, props)

	return ev
}

type Telemetry interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

type machineIdentifier struct {
	id   string
	meta map[string]any
}

// generateMachineID hashes the host id so the raw value never leaves the
// machine. Hosts without a readable id get a random one per process.
func generateMachineID() machineIdentifier {
	once.Do(func() {
		meta := make(map[string]any)
		seed := ""

		info, err := host.Info()
		if err == nil {
			seed = info.HostID
			meta["os"] = info.OS
			meta["platform"] = info.Platform
			meta["platform_family"] = info.PlatformFamily
			meta["platform_version"] = info.PlatformVersion
		}

		if seed == "" {
			seed = uuid.New().String()
		}

		hash := sha256.New()
		hash.Write([]byte(seed))
		hash.Write([]byte(runtime.GOARCH))
		hash.Write([]byte(runtime.GOOS))

		meta["go_version"] = runtime.Version()

		identifier.id = fmt.Sprintf("%x", hash.Sum(nil))
		identifier.meta = meta
	})

	return identifier
}
