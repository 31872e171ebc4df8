package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-voxelcube/internal/config"
	"github.com/coreman2200/funtimes-voxelcube/internal/cube"
	diag "github.com/coreman2200/funtimes-voxelcube/internal/diagnostics"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

// Cube is the part of the controller the preview server drives.
type Cube interface {
	Stats() cube.Stats
	SetPattern(name string) error
	SetSettle(d time.Duration)
}

type State struct {
	mu  sync.RWMutex
	FPS int

	ConfigPath    string
	Config        *config.Config
	CurrentDriver string

	cube        Cube
	frameID     uint64
	latest      voxel.Grid
	dirty       chan struct{}
	diags       chan diag.Diagnostic
	startTime   time.Time
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool
}

// NewState returns a preview server for c. c may be nil and set later with
// SetCube, before any handler is served.
func NewState(c Cube, fps int) *State {
	return &State{
		FPS:         fps,
		cube:        c,
		dirty:       make(chan struct{}, 1),
		diags:       make(chan diag.Diagnostic, 32),
		startTime:   time.Now(),
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
	}
}

func (s *State) SetCube(c Cube) { s.cube = c }

// OnFrame records a new front grid. It never blocks; frames published faster
// than the broadcast rate are coalesced.
func (s *State) OnFrame(front *voxel.Grid, id uint64) {
	s.mu.Lock()
	s.latest = *front
	s.frameID = id
	s.mu.Unlock()
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// PushDiag queues d for /diag clients, dropping it if the queue is full.
func (s *State) PushDiag(d diag.Diagnostic) {
	select {
	case s.diags <- d:
	default:
	}
}

// RunBroadcast sends frames and diagnostics to websocket clients until ctx
// ends, at most FPS frames per second.
func (s *State) RunBroadcast(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(max(1, s.FPS)))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return nil
		case d := <-s.diags:
			s.pushDiag(d)
		case <-ticker.C:
			select {
			case <-s.dirty:
				s.broadcastFrame()
			default:
			}
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (s *State) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.sendTopology(conn)
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.diagClients[conn] = true
	s.mu.Unlock()
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.diagClients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type controlMsg struct {
	Pattern  *string `json:"pattern,omitempty"`
	SettleUs *int    `json:"settle_us,omitempty"`
}

type controlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		reply := controlReply{OK: true}
		if err := json.Unmarshal(data, &msg); err != nil {
			reply = controlReply{Error: err.Error()}
		} else if err := s.applyControl(msg); err != nil {
			reply = controlReply{Error: err.Error()}
		}
		_ = conn.WriteJSON(reply)
	}
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := map[string]any{
		"frame_id": s.frameID,
		"uptime_s": time.Since(s.startTime).Seconds(),
		"driver":   s.CurrentDriver,
		"clients":  len(s.clients),
	}
	s.mu.RUnlock()
	resp["cube"] = s.cube.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *State) applyControl(msg controlMsg) error {
	if msg.Pattern != nil {
		if err := s.cube.SetPattern(*msg.Pattern); err != nil {
			s.PushDiag(diag.Diagnostic{
				Severity: diag.Warn, Code: "PATTERN.REJECTED", Summary: "Pattern not started",
				Detail: err.Error(), Evidence: map[string]any{"name": *msg.Pattern},
			})
			return err
		}
		s.PushDiag(diag.Diagnostic{Severity: diag.Info, Code: "PATTERN.RUNNING", Summary: "Running pattern", Detail: *msg.Pattern})
	}
	if msg.SettleUs != nil {
		us := max(0, *msg.SettleUs)
		s.cube.SetSettle(time.Duration(us) * time.Microsecond)
		s.mu.Lock()
		if s.Config != nil {
			s.Config.Refresh.SettleUs = us
		}
		s.mu.Unlock()
		// Persist config after any change
		s.saveConfig()
	}
	return nil
}

func (s *State) saveConfig() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ConfigPath == "" || s.Config == nil {
		return
	}
	if err := config.Save(s.ConfigPath, s.Config); err != nil {
		log.Warn().Err(err).Str("path", s.ConfigPath).Msg("save config")
	}
}

func (s *State) sendTopology(conn *websocket.Conn) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	top := map[string]any{
		"dim":    map[string]int{"x": voxel.Size, "y": voxel.Size, "z": voxel.Size},
		"order":  "rows[n] = layer n/8, row n%8, bit x",
		"driver": s.CurrentDriver,
	}
	b, _ := json.Marshal(top)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

type frameMsg struct {
	T       int64  `json:"t"`
	FrameID uint64 `json:"frame_id"`
	Rows    []int  `json:"rows"`
}

func (s *State) broadcastFrame() {
	s.mu.RLock()
	g, id := s.latest, s.frameID
	conns := keys(s.clients)
	s.mu.RUnlock()

	rows := make([]int, voxel.Rows)
	for n, v := range g.Bytes() {
		rows[n] = int(v)
	}
	b, _ := json.Marshal(frameMsg{T: time.Now().UnixNano(), FrameID: id, Rows: rows})
	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write frame")
		}
	}
}

func (s *State) pushDiag(d diag.Diagnostic) {
	s.mu.RLock()
	conns := keys(s.diagClients)
	s.mu.RUnlock()
	b, _ := json.Marshal(d)
	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		_ = c.WriteMessage(websocket.TextMessage, b)
	}
}

// keys is called with s.mu held.
func keys(m map[*websocket.Conn]bool) []*websocket.Conn {
	out := make([]*websocket.Conn, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return out
}

func (s *State) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.Close()
	}
	for c := range s.diagClients {
		c.Close()
	}
}
