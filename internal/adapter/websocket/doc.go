// Package websocket serves viewer sockets with gorilla/websocket.
//
// Each socket runs one session: it registers a Conn with the hub, rebroadcasts every text frame
// it receives to the other viewers (and to other instances through the relay), and announces its
// own departure with a connection_closed event.
package websocket
