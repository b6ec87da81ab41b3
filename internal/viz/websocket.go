// Package viz publishes per-tick simulation snapshots to display
// collaborators over websocket and MQTT. It is a read-only consumer of the
// tick loop's published state.
package viz

import (
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/raceline/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotSource hands out a subscription to published snapshots together
// with a cancel func that releases it.
type SnapshotSource interface {
	Subscribe() (<-chan models.Snapshot, func())
}

// WebsocketHandler upgrades the connection and streams every published
// snapshot as a JSON text message. A client that cannot keep up misses
// ticks; a failed write drops the client.
func WebsocketHandler(source SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Error("websocket upgrade failed")
			return
		}
		defer conn.Close()

		log.WithField("remote", r.RemoteAddr).Info("viz client connected")

		// Reads are discarded but must be pumped to notice a client-side
		// close.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		snapshots, cancel := source.Subscribe()
		defer cancel()
		for {
			select {
			case <-closed:
				log.WithField("remote", r.RemoteAddr).Info("viz client disconnected")
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				if err := conn.WriteJSON(snap); err != nil {
					log.WithError(err).Debug("viz write failed, dropping client")
					return
				}
			}
		}
	}
}
