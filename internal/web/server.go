// Package web serves the control panel: login-protected status pages, test
// scheduling and volume controls, plus a JSON API and a websocket status
// stream.
package web

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"prayerhub/internal/config"
	"prayerhub/internal/schedule"
)

const (
	sessionCookie = "prayerhub_session"
	sessionTTL    = 12 * time.Hour
	volumeStep    = 5
)

// ConnectionStatus reports the speaker state. *bluetooth.Manager satisfies
// it.
type ConnectionStatus interface {
	IsConnected() bool
}

// KeepaliveStatus reports the background tone state. *keepalive.Service
// satisfies it.
type KeepaliveStatus interface {
	IsRunning() bool
	IsModulating() bool
}

// VolumeControl applies master volume changes. *audio.Router satisfies it.
type VolumeControl interface {
	SetMasterVolume(percent int) error
}

// Deps are the collaborators the panel exposes.
type Deps struct {
	Scheduler *schedule.DayScheduler
	Tests     *schedule.TestScheduler
	Bluetooth ConnectionStatus
	Keepalive KeepaliveStatus
	Volume    VolumeControl
	// PlayNow triggers an immediate test playback; it must not block.
	PlayNow func()
	// LogPath, when set, enables the log tail on the dashboard.
	LogPath string
}

// Server is the control panel HTTP server.
type Server struct {
	cfg    config.ControlPanel
	deps   Deps
	logger *zap.Logger
	engine *gin.Engine

	mu            sync.Mutex
	sessions      map[string]time.Time
	masterPercent int
}

// NewServer builds the panel router. masterPercent seeds the volume control
// display.
func NewServer(cfg config.ControlPanel, deps Deps, masterPercent int, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:           cfg,
		deps:          deps,
		logger:        logger,
		sessions:      make(map[string]time.Time),
		masterPercent: masterPercent,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.SetHTMLTemplate(template.Must(template.New("").Parse(pageTemplates)))

	engine.GET("/login", s.showLogin)
	engine.POST("/login", s.handleLogin)

	authed := engine.Group("/", s.requireSession)
	authed.GET("/", s.showDashboard)
	authed.POST("/logout", s.handleLogout)
	authed.POST("/test/at", s.scheduleTestAt)
	authed.POST("/test/in", s.scheduleTestIn)
	authed.POST("/test/cancel", s.cancelTest)
	authed.POST("/controls/volume", s.adjustVolume)
	authed.POST("/controls/play", s.playNow)
	authed.GET("/api/status", s.apiStatus)
	authed.GET("/ws", s.serveStatusStream)

	s.engine = engine
	return s
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("Control panel listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) showLogin(c *gin.Context) {
	c.HTML(http.StatusOK, "login", gin.H{})
}

func (s *Server) handleLogin(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	if username != s.cfg.Auth.Username ||
		bcrypt.CompareHashAndPassword([]byte(s.cfg.Auth.PasswordHash), []byte(password)) != nil {
		s.logger.Warn("Rejected panel login", zap.String("username", username))
		c.HTML(http.StatusUnauthorized, "login", gin.H{"Error": "Invalid credentials"})
		return
	}

	token := newSessionToken()
	s.mu.Lock()
	s.sessions[token] = time.Now().Add(sessionTTL)
	s.mu.Unlock()

	c.SetCookie(sessionCookie, token, int(sessionTTL.Seconds()), "/", "", false, true)
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) handleLogout(c *gin.Context) {
	if token, err := c.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, "/login")
}

func (s *Server) requireSession(c *gin.Context) {
	token, err := c.Cookie(sessionCookie)
	if err != nil || !s.sessionValid(token) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.URL.Path == "/ws" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Redirect(http.StatusSeeOther, "/login")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) sessionValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.sessions, token)
		return false
	}
	return true
}

func (s *Server) showDashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard", gin.H{
		"Status":  s.statusSnapshot(),
		"LogTail": s.logTail(40),
		"Flash":   c.Query("msg"),
	})
}

func (s *Server) scheduleTestAt(c *gin.Context) {
	id, err := s.deps.Tests.ScheduleAtTime(c.PostForm("time"))
	s.redirectWithResult(c, id, err)
}

func (s *Server) scheduleTestIn(c *gin.Context) {
	minutes, err := strconv.Atoi(c.PostForm("minutes"))
	if err != nil {
		s.redirectWithResult(c, "", fmt.Errorf("minutes must be a number"))
		return
	}
	id, err := s.deps.Tests.ScheduleInMinutes(minutes)
	s.redirectWithResult(c, id, err)
}

func (s *Server) cancelTest(c *gin.Context) {
	id := c.PostForm("id")
	if !s.deps.Tests.Cancel(id) {
		s.redirectWithResult(c, "", fmt.Errorf("no such test job"))
		return
	}
	s.redirectWithResult(c, "cancelled "+id, nil)
}

func (s *Server) adjustVolume(c *gin.Context) {
	s.mu.Lock()
	switch c.PostForm("direction") {
	case "up":
		s.masterPercent += volumeStep
	case "down":
		s.masterPercent -= volumeStep
	}
	if s.masterPercent > 100 {
		s.masterPercent = 100
	}
	if s.masterPercent < 0 {
		s.masterPercent = 0
	}
	percent := s.masterPercent
	s.mu.Unlock()

	if err := s.deps.Volume.SetMasterVolume(percent); err != nil {
		s.redirectWithResult(c, "", err)
		return
	}
	s.redirectWithResult(c, fmt.Sprintf("volume %d%%", percent), nil)
}

func (s *Server) playNow(c *gin.Context) {
	if s.deps.PlayNow != nil {
		go s.deps.PlayNow()
	}
	s.redirectWithResult(c, "playing test audio", nil)
}

func (s *Server) apiStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.statusSnapshot())
}

func (s *Server) redirectWithResult(c *gin.Context, msg string, err error) {
	if err != nil {
		msg = "error: " + err.Error()
	}
	c.Redirect(http.StatusSeeOther, "/?msg="+strings.ReplaceAll(msg, " ", "+"))
}

func (s *Server) logTail(lines int) []string {
	if s.deps.LogPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.deps.LogPath)
	if err != nil {
		return nil
	}
	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	return all
}

func newSessionToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(buf)
}
