package transport_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/johnnyb12331-lgtm/FreeTalkAPI-sub001/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// serverSocket upgrades a loopback connection and hands back the server side.
func serverSocket(t *testing.T) *websocket.Conn {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted <- c
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client, _, err := websocket.Dial(ctx, srv.URL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close(websocket.StatusNormalClosure, "") })

	select {
	case c := <-accepted:
		return c
	case <-ctx.Done():
		t.Fatal("upgrade did not complete")
		return nil
	}
}

func newTestConnection(t *testing.T, wg *sync.WaitGroup) *transport.Connection {
	t.Helper()
	return transport.NewConnection(
		context.Background(),
		wg,
		serverSocket(t),
		transport.ConnectionConfig{ReadTimeout: time.Second, HeartbeatInterval: time.Second},
		func(context.Context, uuid.UUID, []byte) {},
		nil,
		testLogger(),
	)
}

// Senders outlive deregistration: the dispatcher snapshots room members and
// the cycler closes from a foreign goroutine, so Send after Close is an
// ordinary race, and must drop the message rather than panic.
func TestSendAfterCloseDropsMessage(t *testing.T) {
	var wg sync.WaitGroup
	conn := newTestConnection(t, &wg)
	conn.Run()

	conn.Close(nil)
	<-conn.Done()

	for i := 0; i < 64; i++ {
		conn.Send([]byte("late fan-out"))
	}
	wg.Wait()
}

func TestConcurrentSendAndClose(t *testing.T) {
	var wg sync.WaitGroup
	conn := newTestConnection(t, &wg)
	conn.Run()

	var senders sync.WaitGroup
	for i := 0; i < 4; i++ {
		senders.Add(1)
		go func() {
			defer senders.Done()
			for j := 0; j < 500; j++ {
				conn.Send([]byte("broadcast"))
			}
		}()
	}

	conn.Close(errors.New("connection cycled by new connection"))
	senders.Wait()
	wg.Wait()
	<-conn.Done()
}

func TestCloseBeforeRun(t *testing.T) {
	var wg sync.WaitGroup
	conn := newTestConnection(t, &wg)

	// Registration can fail after the upgrade; the connection is then closed
	// without ever running its pumps.
	conn.Close(errors.New("registration failed"))
	conn.Send([]byte("never delivered"))
	wg.Wait()
	<-conn.Done()
}

func TestCloseIsIdempotent(t *testing.T) {
	var wg sync.WaitGroup
	conn := newTestConnection(t, &wg)
	conn.Run()

	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		go func() {
			conn.Close(nil)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	wg.Wait()
}
