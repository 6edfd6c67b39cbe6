package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 4096,
	CheckOrigin: func(*http.Request) bool {
		// Browser clients connect from arbitrary origins; auth is the
		// session token, not the Origin header.
		return true
	},
}

// Handler upgrades an HTTP request to a websocket and runs the
// connection loop on it.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.logger.Error("websocket upgrade failed", "error", err)
			return
		}
		g.HandleConn(r.Context(), ws)
	}
}
