package transport

// ReceivedMessage is one wrapped APDU received from the network.
type ReceivedMessage struct {
	Frame Frame

	// PeerAddr identifies the source of the message.
	PeerAddr PeerAddress

	// ConnID identifies the TCP connection or UDP peer the frame arrived on.
	// It is stable for the lifetime of the connection.
	ConnID uint32
}

// MessageHandler is called for each received frame. The handler runs on the
// connection's read loop; frames of one connection are delivered in order.
type MessageHandler func(msg *ReceivedMessage)

// CloseHandler is called once a connection has gone away.
type CloseHandler func(connID uint32)
