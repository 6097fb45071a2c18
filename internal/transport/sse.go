package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/toolrack/toolrack/internal/mcp"
	"github.com/toolrack/toolrack/pkg/protocol"
)

const defaultMaxSessions = 256

// session is one open event stream. Responses to posted requests are written
// onto it as message events.
type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	w     io.Writer
	flush http.Flusher
}

func newSessionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// send writes one event onto the stream. Fails once the client is gone.
func (s *session) send(event string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.ctx.Done():
		return fmt.Errorf("session %s closed", s.id)
	default:
	}

	if _, err := io.WriteString(s.w, formatEvent(event, data)); err != nil {
		return err
	}
	s.flush.Flush()
	return nil
}

// sessionTable bounds open sessions. Past the cap the least recently used
// session is canceled, which unblocks its handler and closes the stream.
type sessionTable struct {
	sessions *lru.Cache[string, *session]
}

func newSessionTable(max int) *sessionTable {
	if max <= 0 {
		max = defaultMaxSessions
	}
	cache, err := lru.NewWithEvict(max, func(id string, s *session) {
		if s.ctx.Err() == nil {
			log.Info("session evicted", "session", id)
		}
		s.cancel()
	})
	if err != nil {
		// Reachable only with a non-positive size, which is clamped above.
		panic(err)
	}
	return &sessionTable{sessions: cache}
}

func (t *sessionTable) add(s *session) {
	t.sessions.Add(s.id, s)
}

func (t *sessionTable) get(id string) (*session, bool) {
	return t.sessions.Get(id)
}

// drop removes a session once its handler is tearing down. Removal runs the
// evict callback; canceling an already-canceled context is a no-op.
func (t *sessionTable) drop(id string) {
	t.sessions.Remove(id)
}

func (t *sessionTable) len() int {
	return t.sessions.Len()
}

// readyPayload is the body of the transport/ready event.
type readyPayload struct {
	Session         string `json:"session"`
	MessageEndpoint string `json:"messageEndpoint"`
}

// handleSSE opens an event stream, announces the message endpoint, and
// blocks until the client disconnects or the session table evicts us.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setEventStreamHeaders(w)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &session{
		id:     newSessionID(),
		ctx:    ctx,
		cancel: cancel,
		w:      w,
		flush:  flusher,
	}
	s.sessions.add(sess)
	defer s.sessions.drop(sess.id)

	ready, _ := json.Marshal(readyPayload{
		Session:         sess.id,
		MessageEndpoint: "/messages/" + sess.id,
	})
	if err := sess.send("transport/ready", ready); err != nil {
		return
	}
	log.Info("session opened", "session", sess.id, "remote", r.RemoteAddr)

	<-ctx.Done()
	log.Debug("session closed", "session", sess.id)
}

// handleMessage accepts one JSON-RPC request for an open session and queues
// the response onto that session's stream. The POST itself only acknowledges
// receipt.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	sess, ok := s.sessions.get(id)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		errResp := protocol.NewErrorResponse(nil, protocol.CodeParseError, "Parse error", nil)
		data, _ := json.Marshal(errResp)
		if err := sess.send("message", data); err != nil {
			http.Error(w, "session closed", http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	ctx := mcp.WithRequestContext(r.Context(), mcp.RequestContext{
		UserID:    r.Header.Get(userHeader),
		SessionID: id,
		Transport: "sse",
	})
	resp := s.rpc.Handle(ctx, &req)
	if resp == nil {
		// Notification: nothing goes back on the stream.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "marshal response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := sess.send("message", data); err != nil {
		http.Error(w, "session closed", http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleInvokeStream runs one call and narrates it as an ordered event
// stream: progress, then result or error, then done.
func (s *Server) handleInvokeStream(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "decode request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	setEventStreamHeaders(w)
	stream, err := NewEventStream(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	_ = stream.Progress(map[string]string{"tool": req.Name, "state": "running"})

	resp := s.dispatchInvoke(r.Context(), req)
	if resp.Error != nil {
		_ = stream.Fail(resp.Error)
	} else {
		_ = stream.Result(resp.Result)
	}
	_ = stream.Done()
}

func setEventStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
