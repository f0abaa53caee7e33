package envelope

import "encoding/json"

// FrameType is the "type" of a frame written to a client connection.
type FrameType string

const (
	FrameChatMessage  FrameType = "CHAT_MESSAGE"
	FrameLocation     FrameType = "LOCATION"
	FrameNotification FrameType = "NOTIFICATION"
	FrameConnected    FrameType = "CONNECTED"
	FrameSubscribed   FrameType = "SUBSCRIBED"
	FrameAck          FrameType = "ACK"
	FrameError        FrameType = "ERROR"
)

// Frame is the outbound message format on client connections.
type Frame struct {
	Type        FrameType `json:"type"`
	Destination string    `json:"destination,omitempty"`
	Payload     any       `json:"payload,omitempty"`
}

// DeliveryFrame serializes the frame that delivers e to its destination.
func DeliveryFrame(e Envelope) ([]byte, error) {
	f := Frame{Destination: Destination(e)}
	switch e.Kind {
	case KindChat:
		f.Type, f.Payload = FrameChatMessage, e.Chat
	case KindLocation:
		f.Type, f.Payload = FrameLocation, e.Location
	case KindNotification:
		f.Type, f.Payload = FrameNotification, e.Notification
	}
	return json.Marshal(f)
}
