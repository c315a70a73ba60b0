package scribe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

type wsConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	scribe    *Scribe
	closeOnce sync.Once
}

func (s *Scribe) startHTTP(ctx context.Context) error {
	router := mux.NewRouter()

	router.HandleFunc("/api/recordings", s.handleListRecordings).Methods("GET")
	router.HandleFunc("/api/recordings/{base}", s.handleGetRecording).Methods("GET")
	router.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    s.config.HTTPAddr,
		Handler: router,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	return s.server.Shutdown(context.Background())
}

// handleListRecordings returns the artifact listing, annotated with whether
// each recording has been processed yet.
func (s *Scribe) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	recordings, err := s.store.Recordings()
	if err != nil {
		slog.Error("Failed to list recordings", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	type entry struct {
		Name        string        `json:"name"`
		CreatedAt   time.Time     `json:"createdAt"`
		Duration    time.Duration `json:"duration"`
		Size        int64         `json:"size"`
		Transcribed bool          `json:"transcribed"`
	}

	entries := make([]entry, 0, len(recordings))
	for _, rec := range recordings {
		_, transcribed := s.results.Load(rec.Name)
		entries = append(entries, entry{
			Name:        rec.Name,
			CreatedAt:   rec.CreatedAt,
			Duration:    rec.Duration,
			Size:        rec.Size,
			Transcribed: transcribed,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// handleGetRecording returns the processed result for one artifact.
func (s *Scribe) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	base := vars["base"]

	value, ok := s.results.Load(base)
	if !ok {
		http.Error(w, "Recording not processed", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value.(Result)); err != nil {
		slog.Error("Failed to encode response", "error", err, "base", base)
	}
}

func (s *Scribe) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	wsConn := &wsConnection{
		conn:   conn,
		send:   make(chan []byte, 256),
		scribe: s,
	}

	s.subscribers.Store(wsConn, struct{}{})

	go wsConn.writePump()
	go wsConn.readPump()
}

// broadcast sends an event to every connected subscriber; slow subscribers
// miss events rather than stall the workers.
func (s *Scribe) broadcast(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err)
		return
	}

	s.subscribers.Range(func(key, _ any) bool {
		conn := key.(*wsConnection)
		select {
		case conn.send <- data:
		default:
			slog.Warn("Subscriber channel full, dropping event", "type", ev.Type)
		}
		return true
	})
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.scribe.subscribers.Delete(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
