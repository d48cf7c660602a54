package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountStatic serves the built board UI. Unknown non-API paths fall back to
// index.html so client-side routes resolve.
func (s *Server) mountStatic() {
	if s.staticDir == "" {
		s.engine.NoRoute(apiNotFound)
		return
	}
	if !isDir(s.staticDir) {
		s.logger.Warn("board UI directory missing, serving API only", "path", s.staticDir)
		s.engine.NoRoute(apiNotFound)
		return
	}

	index := filepath.Join(s.staticDir, "index.html")
	if !isFile(index) {
		s.logger.Warn("board UI has no index.html", "path", index)
		s.engine.NoRoute(apiNotFound)
	} else {
		s.engine.GET("/", func(c *gin.Context) { c.File(index) })
		s.engine.NoRoute(func(c *gin.Context) {
			if isAPIPath(c.Request.URL.Path) {
				apiNotFound(c)
				return
			}
			c.File(index)
		})
	}

	if assets := filepath.Join(s.staticDir, "assets"); isDir(assets) {
		s.engine.StaticFS("/assets", gin.Dir(assets, false))
	}
	for _, name := range []string{"favicon.ico", "manifest.json"} {
		if p := filepath.Join(s.staticDir, name); isFile(p) {
			s.engine.StaticFile("/"+name, p)
		}
	}
}

func apiNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
