package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Optional read-only live view of the scrollback over a websocket. The
// bridge publishes plain-text snapshots after processing program
// output; the server coalesces them and pushes the latest state to
// every connected browser. It never touches bridge state, so the core
// stays single-threaded.

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local viewing only
	},
}

// WatchMessage is the wire format pushed to watch clients.
type WatchMessage struct {
	Type    string `json:"type"`    // "history"
	Content string `json:"content"` // full plain-text history window
}

type WatchServer struct {
	addr    string
	updates chan string

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	last    string
}

func NewWatchServer(addr string) *WatchServer {
	return &WatchServer{
		addr:    addr,
		updates: make(chan string, 8),
		clients: make(map[*websocket.Conn]bool),
	}
}

// Publish hands the server a fresh snapshot. Never blocks: when the
// server is behind, intermediate snapshots are dropped and only the
// latest state matters.
func (w *WatchServer) Publish(snapshot string) {
	select {
	case w.updates <- snapshot:
	default:
	}
}

// Start serves the page and websocket endpoint and begins broadcasting.
func (w *WatchServer) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", w.servePage)
	mux.HandleFunc("/ws", w.handleWebSocket)

	go w.broadcastLoop()
	go func() {
		log.Printf("watch server listening on %s", w.addr)
		if err := http.ListenAndServe(w.addr, mux); err != nil {
			log.Printf("watch server: %v", err)
		}
	}()
}

// broadcastLoop coalesces published snapshots and pushes at most a few
// updates per second, the latest state winning.
func (w *WatchServer) broadcastLoop() {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var pending string
	dirty := false
	for {
		select {
		case s := <-w.updates:
			pending = s
			dirty = true
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			w.broadcast(pending)
		}
	}
}

func (w *WatchServer) broadcast(snapshot string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if snapshot == w.last {
		return
	}
	w.last = snapshot
	msg := WatchMessage{Type: "history", Content: snapshot}
	for conn := range w.clients {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("watch client write error: %v", err)
			conn.Close()
			delete(w.clients, conn)
		}
	}
}

func (w *WatchServer) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("watch upgrade error: %v", err)
		return
	}

	w.mu.Lock()
	w.clients[conn] = true
	last := w.last
	w.mu.Unlock()
	log.Printf("watch client connected (%s)", r.RemoteAddr)

	if last != "" {
		conn.WriteJSON(WatchMessage{Type: "history", Content: last})
	}

	// The view is read-only; the read loop only notices disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				w.mu.Lock()
				delete(w.clients, conn)
				w.mu.Unlock()
				conn.Close()
				log.Printf("watch client disconnected (%s)", r.RemoteAddr)
				return
			}
		}
	}()
}

func (w *WatchServer) servePage(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.Write([]byte(watchPage))
}

const watchPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>scrollback watch</title>
<style>
body { background: #111; color: #ddd; font-family: monospace; margin: 1em; }
pre { white-space: pre; }
#status { color: #888; }
</style>
</head>
<body>
<div id="status">connecting...</div>
<pre id="history"></pre>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onopen = () => { document.getElementById("status").textContent = "live"; };
ws.onclose = () => { document.getElementById("status").textContent = "disconnected"; };
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.type === "history") {
    document.getElementById("history").textContent = msg.content;
    window.scrollTo(0, document.body.scrollHeight);
  }
};
</script>
</body>
</html>
`
