package speakerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fieldops/pagingcore/internal/config"
)

// newTestSpeaker starts an httptest server that upgrades to a WebSocket
// connection and hands the first received message to recv, following the
// same websocket.Upgrader{CheckOrigin: ...} pattern as
// rustyguts-bken/server/server.go's own "/ws" handler.
func newTestSpeaker(t *testing.T) (wsURL string, recv chan zoneCommand) {
	t.Helper()
	recv = make(chan zoneCommand, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd zoneCommand
		if err := json.Unmarshal(msg, &cmd); err == nil {
			recv <- cmd
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), recv
}

func TestSetZoneDeliversCommandToEachSpeaker(t *testing.T) {
	url, recv := newTestSpeaker(t)
	fleet := New(
		[]config.Speaker{{ID: "lobby", VolumeOverride: 0.8}},
		func(id string) string { return url },
	)

	results := fleet.SetZone(context.Background(), []string{"lobby"}, "zone-active")
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	select {
	case cmd := <-recv:
		require.Equal(t, "zone-active", cmd.ZoneAddress)
		require.Equal(t, 0.8, cmd.Volume)
	case <-time.After(2 * time.Second):
		t.Fatal("speaker never received a command")
	}
}

func TestSetZoneReportsErrorForUnknownSpeaker(t *testing.T) {
	fleet := New(nil, func(string) string { return "" })

	results := fleet.SetZone(context.Background(), []string{"missing"}, "zone-active")
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}

func TestSetZoneUnreachableSpeakerDoesNotBlockOthers(t *testing.T) {
	url, recv := newTestSpeaker(t)
	fleet := New(
		[]config.Speaker{{ID: "lobby"}, {ID: "dead"}},
		func(id string) string {
			if id == "dead" {
				return "ws://127.0.0.1:1/control" // nothing listens here
			}
			return url
		},
	)

	results := fleet.SetZone(context.Background(), []string{"lobby", "dead"}, "zone-active")
	require.Len(t, results, 2)

	var sawLobbyOK, sawDeadErr bool
	for _, r := range results {
		switch r.SpeakerID {
		case "lobby":
			sawLobbyOK = r.Err == nil
		case "dead":
			sawDeadErr = r.Err != nil
		}
	}
	require.True(t, sawLobbyOK)
	require.True(t, sawDeadErr)

	select {
	case <-recv:
	case <-time.After(2 * time.Second):
		t.Fatal("reachable speaker never received a command")
	}
}

func TestSetVolumeUpdatesOverrideForNextCall(t *testing.T) {
	url, recv := newTestSpeaker(t)
	fleet := New([]config.Speaker{{ID: "lobby"}}, func(string) string { return url })

	fleet.SetVolume("lobby", 0.5)
	require.NoError(t, fleet.setOne(context.Background(), "lobby", "zone-active"))

	select {
	case cmd := <-recv:
		require.Equal(t, 0.5, cmd.Volume)
	case <-time.After(2 * time.Second):
		t.Fatal("speaker never received a command")
	}
}
