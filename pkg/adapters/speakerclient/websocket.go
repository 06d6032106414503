// Package speakerclient implements external.SpeakerFleet over a plain
// JSON-over-WebSocket control connection to each networked loudspeaker,
// using github.com/gorilla/websocket the same way
// rustyguts-bken/server dials and upgrades its own signalling
// connections.
package speakerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldops/pagingcore/internal/config"
	"github.com/fieldops/pagingcore/internal/external"
)

// zoneCommand is the wire message sent to a speaker's control socket.
type zoneCommand struct {
	ZoneAddress string  `json:"zone_address"`
	Volume      float64 `json:"volume,omitempty"`
}

// dialTimeout bounds how long SetZone waits to establish a connection to
// a speaker that is not currently reachable; per spec.md §7 a single
// unreachable speaker must not block the aggregate transition.
const dialTimeout = 3 * time.Second

// Fleet dials each linked speaker's control endpoint on demand. Connections
// are not kept warm between calls — paging transitions are infrequent
// enough that reconnect cost is immaterial, and a short-lived connection
// sidesteps needing to detect and recover a stale one.
type Fleet struct {
	mu        sync.Mutex
	endpoints map[string]string // speaker ID -> ws:// control URL
	volumes   map[string]float64
}

// New builds a Fleet from the configured speaker list. endpointFor maps a
// speaker ID to its control-socket URL (e.g. "ws://10.0.1.12:9000/control").
func New(speakers []config.Speaker, endpointFor func(speakerID string) string) *Fleet {
	f := &Fleet{
		endpoints: make(map[string]string, len(speakers)),
		volumes:   make(map[string]float64, len(speakers)),
	}
	for _, sp := range speakers {
		f.endpoints[sp.ID] = endpointFor(sp.ID)
		f.volumes[sp.ID] = sp.VolumeOverride
	}
	return f
}

// SetZone fans out to every speaker concurrently and collects per-speaker
// results; no ordering guarantee between disjoint speaker sets (spec.md
// §6).
func (f *Fleet) SetZone(ctx context.Context, speakerIDs []string, zoneAddress string) []external.SpeakerResult {
	results := make([]external.SpeakerResult, len(speakerIDs))
	var wg sync.WaitGroup
	for i, id := range speakerIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = external.SpeakerResult{SpeakerID: id, Err: f.setOne(ctx, id, zoneAddress)}
		}(i, id)
	}
	wg.Wait()
	return results
}

func (f *Fleet) setOne(ctx context.Context, speakerID, zoneAddress string) error {
	f.mu.Lock()
	endpoint, ok := f.endpoints[speakerID]
	volume := f.volumes[speakerID]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("speaker %q: no known control endpoint", speakerID)
	}
	if _, err := url.Parse(endpoint); err != nil {
		return fmt.Errorf("speaker %q: invalid control endpoint %q: %w", speakerID, endpoint, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("speaker %q: dial: %w", speakerID, err)
	}
	defer conn.Close()

	payload, err := json.Marshal(zoneCommand{ZoneAddress: zoneAddress, Volume: volume})
	if err != nil {
		return fmt.Errorf("speaker %q: encode command: %w", speakerID, err)
	}

	deadline, _ := dialCtx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("speaker %q: write: %w", speakerID, err)
	}
	return nil
}

// SetVolume updates the per-speaker gain override applied on the next
// zone-set call (SPEC_FULL.md §3.3). It does not itself touch the
// speaker — the override takes effect on the next real transition.
func (f *Fleet) SetVolume(speakerID string, volume float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[speakerID] = volume
}
