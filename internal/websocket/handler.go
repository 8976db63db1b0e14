package websocket

import (
	"github.com/gofiber/websocket/v2"
)

const sendBuffer = 256

// ServeWs runs one websocket session for userID and returns when it ends.
func ServeWs(hub *Hub, c *websocket.Conn, userID string) {
	client := &Client{Hub: hub, Conn: c, UserID: userID, Send: make(chan []byte, sendBuffer)}
	if !hub.join(client) {
		c.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}
