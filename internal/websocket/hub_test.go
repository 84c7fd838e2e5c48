package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// The feed session's reply path and the pub/sub fan-out both write to the
// same connection; gorilla/websocket panics on concurrent writers, so the
// client wrapper must serialize them.
func TestClientSerializesConcurrentWrites(t *testing.T) {
	const (
		writers           = 4
		messagesPerWriter = 50
	)

	upgraded := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade: %v", err)
			return
		}
		upgraded <- conn
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialed, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer dialed.Close()

	serverConn := <-upgraded
	defer serverConn.Close()
	cl := &client{conn: serverConn}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for i := 0; i < writers*messagesPerWriter; i++ {
			if _, _, err := dialed.ReadMessage(); err != nil {
				t.Errorf("ReadMessage: %v", err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < messagesPerWriter; j++ {
				if err := cl.write([]byte(`{"type":"card_rated"}`)); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	<-drained
}
