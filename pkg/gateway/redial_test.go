package gateway

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photon-controls/slits-go/pkg/pv"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		Initial:    10 * time.Millisecond,
		Max:        50 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0,
	})

	assert.Equal(t, 10*time.Millisecond, b.Next())
	assert.Equal(t, 20*time.Millisecond, b.Next())
	assert.Equal(t, 40*time.Millisecond, b.Next())
	// Capped from here on.
	assert.Equal(t, 50*time.Millisecond, b.Next())
	assert.Equal(t, 50*time.Millisecond, b.Next())
	assert.Equal(t, 5, b.Attempts())

	b.Reset()
	assert.Equal(t, 0, b.Attempts())
	assert.Equal(t, 10*time.Millisecond, b.Next())
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		Initial:    100 * time.Millisecond,
		Max:        100 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.25,
	})

	for i := 0; i < 50; i++ {
		delay := b.Next()
		assert.GreaterOrEqual(t, delay, 100*time.Millisecond)
		assert.LessOrEqual(t, delay, 125*time.Millisecond)
	}
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff(BackoffConfig{})
	assert.Equal(t, DefaultRedialInitial, b.initial)
	assert.Equal(t, DefaultRedialMax, b.max)
	assert.Equal(t, DefaultRedialMultiplier, b.multiplier)
}

func TestDialRetryLateServer(t *testing.T) {
	// Reserve a port, release it, and bring the gateway up there only
	// after the first attempts have failed.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	registry := pv.NewRegistry()
	require.NoError(t, registry.Add(pv.NewSoftPV("TST:PV", pv.WithValue(3.0))))

	serverCh := make(chan *Server, 1)
	go func() {
		time.Sleep(150 * time.Millisecond)
		server, err := NewServer(ServerConfig{Address: addr, Registry: registry})
		if err != nil || server.Start(context.Background()) != nil {
			serverCh <- nil
			return
		}
		serverCh <- server
	}()
	t.Cleanup(func() {
		if server := <-serverCh; server != nil {
			server.Stop()
		}
	})

	var retries atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := DialRetry(ctx, RedialConfig{
		Client: ClientConfig{Address: addr, RequestTimeout: 2 * time.Second},
		Backoff: BackoffConfig{
			Initial: 25 * time.Millisecond,
			Max:     100 * time.Millisecond,
			Jitter:  0,
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			retries.Add(1)
		},
	})
	require.NoError(t, err)
	defer client.Close()

	assert.GreaterOrEqual(t, retries.Load(), int32(1))

	value, _, err := client.Get(context.Background(), "TST:PV")
	require.NoError(t, err)
	assert.Equal(t, 3.0, value)
}

func TestDialRetryCancelled(t *testing.T) {
	// Nothing listens here.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = DialRetry(ctx, RedialConfig{
		Client:  ClientConfig{Address: addr, ConnectTimeout: 50 * time.Millisecond},
		Backoff: BackoffConfig{Initial: 25 * time.Millisecond, Jitter: 0},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientDoneOnServerStop(t *testing.T) {
	tg := newTestGateway(t)

	select {
	case <-tg.client.Done():
		t.Fatal("connection reported down while the server is running")
	default:
	}

	require.NoError(t, tg.server.Stop())

	select {
	case <-tg.client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection shutdown not observed")
	}
	assert.Error(t, tg.client.Err())
}

func TestClientDoneOnClose(t *testing.T) {
	tg := newTestGateway(t)

	require.NoError(t, tg.client.Close())

	select {
	case <-tg.client.Done():
	case <-time.After(time.Second):
		t.Fatal("close did not signal Done")
	}
	assert.NoError(t, tg.client.Err())
}
