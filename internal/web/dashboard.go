package web

import (
	_ "embed"
	"net/http"
	"strings"
)

//go:embed static/dashboard.html
var dashboardHTML string

// Dashboard returns a handler serving the live redaction dashboard, which
// listens on the WebSocket at wsPath
func Dashboard(wsPath string) http.HandlerFunc {
	page := []byte(strings.ReplaceAll(dashboardHTML, "{{WS_PATH}}", wsPath))

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		_, _ = w.Write(page)
	}
}
