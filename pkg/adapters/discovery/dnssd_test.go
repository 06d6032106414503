package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func TestControlURLFormatsWebSocketAddress(t *testing.T) {
	sp := Speaker{ID: "lobby", Host: "10.0.1.12", Port: 9000}
	require.Equal(t, "ws://10.0.1.12:9000/control", sp.ControlURL())
}

func TestEndpointForUnknownSpeakerReturnsEmpty(t *testing.T) {
	b := New(nopLogger{})
	require.Equal(t, "", b.EndpointFor("never-seen"))
}

func TestSnapshotStartsEmpty(t *testing.T) {
	b := New(nopLogger{})
	require.Empty(t, b.Snapshot())
}
