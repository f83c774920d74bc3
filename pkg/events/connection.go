package events

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"

	"github.com/nexagent/nexagent/pkg/models"
)

// wsTransport adapts a coder/websocket connection to the Transport interface.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

// HandleConnection registers conn as the subscriber for conversationID and
// blocks running the read loop until the connection closes. Client pings get
// a pong; everything else is ack-ed. Any inbound message counts as an
// acknowledgement for liveness purposes.
func (b *Broadcaster) HandleConnection(ctx context.Context, conversationID string, conn *websocket.Conn, snapshot *models.Timeline) {
	sub := b.Register(ctx, conversationID, &wsTransport{conn: conn}, snapshot)
	defer b.Deregister(sub)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		b.RecordAck(conversationID)

		var msg struct {
			Type string `json:"type"`
		}
		// Client pings may be any JSON; unknown types are ack-ed.
		if unmarshalErr := json.Unmarshal(data, &msg); unmarshalErr != nil {
			b.SendAck(ctx, conversationID, string(data))
			continue
		}
		switch msg.Type {
		case FramePing:
			b.SendPong(ctx, conversationID)
		case FramePong, FrameAck:
			// Pure acknowledgement, already recorded.
		default:
			var echoBack any
			_ = json.Unmarshal(data, &echoBack)
			b.SendAck(ctx, conversationID, echoBack)
		}
	}
}
