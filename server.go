package sheetcalc

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, no cross-origin policy
	},
}

// Server exposes a sheet over HTTP: a websocket endpoint accepting edits and
// broadcasting grid snapshots, plus plain-text dump endpoints. The engine is
// single-threaded, so every sheet access is serialized through one mutex.
type Server struct {
	sheet *Sheet
	opts  *Options

	mu      sync.Mutex // guards sheet and clients
	clients map[string]*websocket.Conn
}

// NewServer creates a Server around an existing sheet.
func NewServer(sheet *Sheet, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Server{
		sheet:   sheet,
		opts:    o,
		clients: make(map[string]*websocket.Conn),
	}
}

// EditRequest is one client message: set or clear a cell.
type EditRequest struct {
	Type string `json:"type"` // "set" or "clear"
	Ref  string `json:"ref"`  // A1-notation cell name
	Text string `json:"text,omitempty"`
}

// CellState is one materialized cell in a snapshot.
type CellState struct {
	Ref   string `json:"ref"`
	Text  string `json:"text"`
	Value string `json:"value"`
}

// Snapshot is the full grid state pushed to clients after every edit.
type Snapshot struct {
	Type  string      `json:"type"` // "snapshot" or "error"
	Rows  int         `json:"rows"`
	Cols  int         `json:"cols"`
	Cells []CellState `json:"cells,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Handler returns the HTTP routes: / (viewer page), /ws (edits and
// snapshots), /values and /texts (printable dumps).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexHTML))
	})
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/values", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.sheet.PrintValues(w)
	})
	mux.HandleFunc("/texts", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.sheet.PrintTexts(w)
	})
	return mux
}

// ListenAndServe serves on the configured address until the listener fails.
func (s *Server) ListenAndServe() error {
	s.opts.logger.WithField("addr", s.opts.addr).Info("serving sheet")
	return http.ListenAndServe(s.opts.addr, s.Handler())
}

// HandleWebSocket upgrades the connection, sends the current snapshot, then
// applies incoming edits and broadcasts the resulting state to all clients.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	id := uuid.NewString()
	log := s.opts.logger.WithField("client", id)

	s.mu.Lock()
	s.clients[id] = conn
	initial := s.snapshotLocked()
	s.mu.Unlock()

	log.Info("client connected")
	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		conn.Close()
		log.Info("client disconnected")
	}()

	if err := conn.WriteJSON(initial); err != nil {
		log.WithError(err).Warn("initial snapshot write failed")
		return
	}

	for {
		var req EditRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if err := s.apply(req); err != nil {
			log.WithFields(logrus.Fields{
				"type": req.Type,
				"ref":  req.Ref,
			}).WithError(err).Warn("edit rejected")
			s.mu.Lock()
			werr := conn.WriteJSON(Snapshot{Type: "error", Error: err.Error()})
			s.mu.Unlock()
			if werr != nil {
				return
			}
			continue
		}
		s.broadcast()
	}
}

func (s *Server) apply(req EditRequest) error {
	pos, err := ParsePosition(req.Ref)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch req.Type {
	case "clear":
		return s.sheet.ClearCell(pos)
	default:
		return s.sheet.SetCell(pos, req.Text)
	}
}

func (s *Server) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	for id, conn := range s.clients {
		if err := conn.WriteJSON(snap); err != nil {
			s.opts.logger.WithField("client", id).WithError(err).Warn("broadcast write failed")
			conn.Close()
			delete(s.clients, id)
		}
	}
}

// snapshotLocked collects every materialized cell inside the bounding box.
// Caller holds s.mu.
func (s *Server) snapshotLocked() Snapshot {
	size := s.sheet.GetPrintableSize()
	snap := Snapshot{Type: "snapshot", Rows: size.Height, Cols: size.Width}
	for row := 0; row < size.Height; row++ {
		for col := 0; col < size.Width; col++ {
			cell, _ := s.sheet.GetCell(Position{Row: row, Col: col})
			if cell == nil {
				continue
			}
			snap.Cells = append(snap.Cells, CellState{
				Ref:   Position{Row: row, Col: col}.String(),
				Text:  cell.GetText(),
				Value: FormatValue(cell.GetValue()),
			})
		}
	}
	return snap
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>sheetcalc</title>
<style>body{font-family:monospace;margin:2em}td{border:1px solid #ccc;padding:2px 8px;min-width:4em}input{width:30em}</style>
</head>
<body>
<h3>sheetcalc</h3>
<p><input id="cmd" placeholder="A1 =B1+2   (empty text clears)"><button onclick="send()">set</button></p>
<table id="grid"></table>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.type === "error") { alert(msg.error); return; }
  const byRef = {};
  for (const c of msg.cells || []) byRef[c.ref] = c;
  const colName = (i) => { let s=""; i++; while(i>0){i--;s=String.fromCharCode(65+i%26)+s;i=(i/26)|0;} return s; };
  let html = "";
  for (let r = 0; r < msg.rows; r++) {
    html += "<tr>";
    for (let c = 0; c < msg.cols; c++) {
      const cell = byRef[colName(c) + (r+1)];
      html += "<td title='" + (cell ? cell.text : "") + "'>" + (cell ? cell.value : "") + "</td>";
    }
    html += "</tr>";
  }
  document.getElementById("grid").innerHTML = html;
};
function send() {
  const v = document.getElementById("cmd").value;
  const i = v.indexOf(" ");
  const ref = i < 0 ? v : v.slice(0, i);
  const text = i < 0 ? "" : v.slice(i + 1);
  ws.send(JSON.stringify({type: text === "" ? "clear" : "set", ref: ref, text: text}));
}
</script>
</body>
</html>
`
