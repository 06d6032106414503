// Package discovery finds networked loudspeakers on the local network via
// mDNS/DNS-SD, using github.com/brutella/dnssd the same way
// doismellburning-samoyed/src/dns_sd.go uses it to announce its own KISS
// TCP service — except here the module is a browser, not an announcer,
// since speakers advertise themselves and the coordinator host only needs
// to find them (SPEC_FULL.md §3.1).
package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/brutella/dnssd"

	"github.com/fieldops/pagingcore/internal/external"
)

// ServiceType is the DNS-SD service type networked speakers are expected
// to advertise themselves under.
const ServiceType = "_pagingspeaker._tcp"

// Speaker is one discovered control endpoint.
type Speaker struct {
	ID   string // DNS-SD instance name, used as the speaker's stable ID
	Host string
	Port int
}

// ControlURL returns the ws:// endpoint a speakerclient.Fleet can dial.
func (s Speaker) ControlURL() string {
	return fmt.Sprintf("ws://%s:%d/control", s.Host, s.Port)
}

// Browser maintains a live set of discovered speakers, updated as mDNS
// announcements and withdrawals arrive.
type Browser struct {
	logger external.Logger

	mu       sync.Mutex
	speakers map[string]Speaker
}

// New constructs an idle Browser. Call Run to start listening.
func New(logger external.Logger) *Browser {
	return &Browser{logger: logger, speakers: make(map[string]Speaker)}
}

// Run blocks, browsing for speakers until ctx is cancelled. Run it in its
// own goroutine; Snapshot is safe to call concurrently from any other.
func (b *Browser) Run(ctx context.Context) error {
	add := func(e dnssd.BrowseEntry) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if len(e.IPs) == 0 {
			return
		}
		host := e.IPs[0].String()
		b.speakers[e.Name] = Speaker{ID: e.Name, Host: host, Port: e.Port}
		b.logger.Info("discovery: speaker found", "id", e.Name, "host", host, "port", e.Port)
	}
	remove := func(e dnssd.BrowseEntry) {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.speakers, e.Name)
		b.logger.Info("discovery: speaker lost", "id", e.Name)
	}

	if err := dnssd.LookupType(ctx, ServiceType, add, remove); err != nil {
		return fmt.Errorf("discovery: browse %s: %w", ServiceType, err)
	}
	return nil
}

// Snapshot returns every speaker known at the moment of the call.
func (b *Browser) Snapshot() []Speaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Speaker, 0, len(b.speakers))
	for _, sp := range b.speakers {
		out = append(out, sp)
	}
	return out
}

// EndpointFor resolves a speaker ID to its control URL, for use as the
// endpointFor callback passed to speakerclient.New. It returns "" for an
// unknown ID; the speaker client reports that as a dial failure rather
// than panicking, keeping one missing speaker from taking down a fan-out.
func (b *Browser) EndpointFor(speakerID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	sp, ok := b.speakers[speakerID]
	if !ok {
		return ""
	}
	return sp.ControlURL()
}
