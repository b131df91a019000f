package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bluefox-project/bluefox/internal/util"
)

// handleBlueBox services the HTTP tunnel. The envelope arrives as the
// sfsHttp form field and the reply is plain text, matching what the
// client's fallback transport expects.
func (s *Server) handleBlueBox(c *gin.Context) {
	raw := c.PostForm("sfsHttp")
	resp := s.tunnel.Handle(c.Request.Context(), raw, c.ClientIP())
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(resp))
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "bluefox",
		"version": "1.0.0",
	})
}

// handleGetServerInfo returns basic server information, including the
// address clients should expect rendezvous traffic from.
func (s *Server) handleGetServerInfo(c *gin.Context) {
	srv := s.cfg.GetServerData()
	sysInfo := util.GetSystemInfo()

	address, err := util.GetPublicIP()
	if err != nil {
		address, _ = util.GetLocalIP()
	}

	c.JSON(http.StatusOK, gin.H{
		"server_name":     srv.Name,
		"server_region":   srv.Region,
		"server_address":  address,
		"tcp_port":        srv.TCPPort,
		"http_port":       srv.HTTPPort,
		"sessions":        s.svc.Sessions().Count(),
		"rooms":           s.svc.Rooms().Count(),
		"tcp_connections": s.conns.Count(),
		"platform":        sysInfo.Platform,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
	})
}

// handleGetVersion returns the lobby server version and protocol version key.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":     "1.0.0",
		"name":        "Bluefox",
		"version_key": s.cfg.GetServerData().VersionKey,
	})
}
