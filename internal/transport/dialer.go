package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const dialTimeout = 5 * time.Second

// Dialer caches gRPC connections to peer endpoints, the way the pack's
// node.ClientManager does for its KV-store clients.
type Dialer struct {
	mu      sync.RWMutex
	conns   map[string]*grpc.ClientConn
	clients map[string]*SWIMClient
}

// NewDialer returns an empty connection cache.
func NewDialer() *Dialer {
	return &Dialer{
		conns:   make(map[string]*grpc.ClientConn),
		clients: make(map[string]*SWIMClient),
	}
}

// SWIMClientFor returns a cached SWIMClient for endpoint, dialing lazily.
func (d *Dialer) SWIMClientFor(endpoint string) (*SWIMClient, error) {
	d.mu.RLock()
	client, ok := d.clients[endpoint]
	d.mu.RUnlock()
	if ok {
		return client, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if client, ok := d.clients[endpoint]; ok {
		return client, nil
	}

	conn, err := d.dialLocked(endpoint)
	if err != nil {
		return nil, err
	}
	client = NewSWIMClient(conn)
	d.clients[endpoint] = client
	return client, nil
}

// AdminClientFor returns an AdminClient to endpoint, reusing the same
// cached connection as SWIMClientFor.
func (d *Dialer) AdminClientFor(endpoint string) (*AdminClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	conn, err := d.dialLocked(endpoint)
	if err != nil {
		return nil, err
	}
	return NewAdminClient(conn), nil
}

func (d *Dialer) dialLocked(endpoint string) (*grpc.ClientConn, error) {
	if conn, ok := d.conns[endpoint]; ok {
		return conn, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", endpoint, err)
	}
	d.conns[endpoint] = conn
	return conn, nil
}

// Close tears down every cached connection.
func (d *Dialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, conn := range d.conns {
		conn.Close()
	}
	d.conns = make(map[string]*grpc.ClientConn)
	d.clients = make(map[string]*SWIMClient)
}
