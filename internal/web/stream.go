package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"prayerhub/internal/schedule"
)

// statusPushInterval paces the websocket stream; the panel does not need
// sub-second updates.
const statusPushInterval = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The panel is LAN-only behind session auth; same-origin enforcement
	// would break direct IP access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Status is the panel state snapshot sent to the dashboard, the JSON API and
// the websocket stream.
type Status struct {
	Time               string             `json:"time"`
	BluetoothConnected bool               `json:"bluetooth_connected"`
	KeepaliveRunning   bool               `json:"keepalive_running"`
	KeepaliveCycling   bool               `json:"keepalive_cycling"`
	MasterPercent      int                `json:"master_percent"`
	Jobs               []schedule.JobInfo `json:"jobs"`
	TestJobs           []schedule.JobInfo `json:"test_jobs"`
}

func (s *Server) statusSnapshot() Status {
	s.mu.Lock()
	master := s.masterPercent
	s.mu.Unlock()

	status := Status{
		Time:          time.Now().Format(time.RFC3339),
		MasterPercent: master,
		Jobs:          s.deps.Scheduler.Jobs(),
		TestJobs:      s.deps.Tests.List(),
	}
	if s.deps.Bluetooth != nil {
		status.BluetoothConnected = s.deps.Bluetooth.IsConnected()
	}
	if s.deps.Keepalive != nil {
		status.KeepaliveRunning = s.deps.Keepalive.IsRunning()
		status.KeepaliveCycling = s.deps.Keepalive.IsModulating()
	}
	return status
}

// serveStatusStream upgrades to a websocket and pushes status snapshots
// until the client goes away.
func (s *Server) serveStatusStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.statusSnapshot()); err != nil {
			return
		}
		<-ticker.C
	}
}
