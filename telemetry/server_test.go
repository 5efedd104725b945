package telemetry

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"particlesim/timing"
)

func startServer(t *testing.T, reg *prometheus.Registry) *Server {
	t.Helper()
	s := New("127.0.0.1:0", reg, nil)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, s.Close(ctx))
	})
	return s
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func sample(frames uint64) timing.Stats {
	return timing.Stats{
		Frames: frames,
		Averages: map[string]time.Duration{
			timing.PhasePhysics: 2 * time.Millisecond,
			timing.PhaseFrame:   16 * time.Millisecond,
		},
		FPS: 62.5,
	}
}

func TestBroadcastStats(t *testing.T) {
	s := startServer(t, prometheus.NewRegistry())
	conn := dial(t, s)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	s.Publish(sample(42))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "stats", msg.Type)
	assert.Equal(t, uint64(42), msg.Stats.Frames)
	assert.Equal(t, 2*time.Millisecond, msg.Stats.Averages[timing.PhasePhysics])
	assert.Equal(t, 62.5, msg.Stats.FPS)
}

func TestNewClientGetsLatest(t *testing.T) {
	s := startServer(t, prometheus.NewRegistry())
	s.Publish(sample(1))
	s.Publish(sample(7))

	conn := dial(t, s)
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	if msg.Stats.Frames == 1 {
		// a slow broadcaster can still be sending the first snapshot
		require.NoError(t, conn.ReadJSON(&msg))
	}
	assert.Equal(t, uint64(7), msg.Stats.Frames)
}

func TestPublishDoesNotBlock(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(sample(uint64(i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked without a broadcaster")
	}
	assert.Equal(t, uint64(99), (<-s.updates).Frames)
}

func TestClientRemovedOnDisconnect(t *testing.T) {
	s := startServer(t, prometheus.NewRegistry())
	conn := dial(t, s)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp, err := timing.NewExporter(reg)
	require.NoError(t, err)
	exp.Observe(sample(3))

	s := startServer(t, reg)
	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "particlesim_frames_per_second 62.5")
	assert.Contains(t, string(body), `particlesim_phase_seconds{phase="physics"} 0.002`)
}

func TestCloseTwice(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
}
