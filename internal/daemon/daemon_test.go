package daemon_test

import (
	"context"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"swimguard/internal/clock"
	"swimguard/internal/daemon"
	"swimguard/internal/metrics"
	"swimguard/internal/swim"
	"swimguard/internal/transport"
)

func newTestDaemon(t *testing.T, self swim.Node, seed int64, listenAddr string) (*daemon.Daemon, *transport.Dialer) {
	t.Helper()
	settings := swim.DefaultSettings()
	settings.ProbeInterval = 20 * time.Millisecond
	settings.PingTimeout = 50 * time.Millisecond

	inst := swim.NewInstance(self, settings, clock.System(), rand.New(rand.NewSource(seed)))
	rec := metrics.NewRecorder(prometheus.NewRegistry())
	dialer := transport.NewDialer()
	log := logrus.NewEntry(logrus.New())

	d := daemon.New(inst, dialer, rec, log, listenAddr)
	return d, dialer
}

// waitForListener blocks until addr accepts a TCP connection, or fails the
// test once timeout elapses. Daemon.Start's net.Listen call races with the
// goroutine that launches it, so every test dialing a freshly started
// daemon needs this.
func waitForListener(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("listener at %s never came up", addr)
}

func TestDaemon_PingRPC_RespondsWithAck(t *testing.T) {
	self := swim.Node{Endpoint: "127.0.0.1:18101", UID: "b"}
	d, dialer := newTestDaemon(t, self, 1, self.Endpoint)
	defer dialer.Close()

	go d.Start()
	defer d.Stop()
	waitForListener(t, self.Endpoint, 2*time.Second)

	clientDialer := transport.NewDialer()
	defer clientDialer.Close()
	client, err := clientDialer.SWIMClientFor(self.Endpoint)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ack, err := client.Ping(ctx, &transport.PingMessage{
		From:           transport.WireNode{Endpoint: "127.0.0.1:18102", UID: "a"},
		SequenceNumber: 1,
	})
	require.NoError(t, err)
	require.Equal(t, self.Endpoint, ack.AckTarget.Endpoint)
	require.Equal(t, uint64(0), ack.Incarnation)
	require.Equal(t, uint64(1), ack.SequenceNumber)
}

func TestDaemon_AdminJoinGetMembershipConfirmDead(t *testing.T) {
	self := swim.Node{Endpoint: "127.0.0.1:18103", UID: "a"}
	d, dialer := newTestDaemon(t, self, 2, self.Endpoint)
	defer dialer.Close()

	go d.Start()
	defer d.Stop()
	waitForListener(t, self.Endpoint, 2*time.Second)

	clientDialer := transport.NewDialer()
	defer clientDialer.Close()
	admin, err := clientDialer.AdminClientFor(self.Endpoint)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	peer := transport.WireNode{Endpoint: "127.0.0.1:18104", UID: "b"}
	_, err = admin.Join(ctx, &transport.JoinRequest{Peer: peer})
	require.NoError(t, err)

	snapshot, err := admin.GetMembership(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Members, 2)

	var found bool
	for _, m := range snapshot.Members {
		if m.Peer.Endpoint == peer.Endpoint {
			found = true
			require.Equal(t, int(swim.KindAlive), m.Status.Kind)
		}
	}
	require.True(t, found, "joined peer should appear in membership")

	health, err := admin.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, health.AliveCount)

	reply, err := admin.ConfirmDead(ctx, &transport.ConfirmDeadRequest{Peer: peer})
	require.NoError(t, err)
	require.True(t, reply.Applied)

	snapshot, err = admin.GetMembership(ctx)
	require.NoError(t, err)
	for _, m := range snapshot.Members {
		if m.Peer.Endpoint == peer.Endpoint {
			require.Equal(t, int(swim.KindDead), m.Status.Kind)
		}
	}

	// A second confirm-dead on an already-dead peer is a no-op.
	reply, err = admin.ConfirmDead(ctx, &transport.ConfirmDeadRequest{Peer: peer})
	require.NoError(t, err)
	require.False(t, reply.Applied)
}
