package transport

import (
	"context"
	"net"
	"sync"
	"time"
)

// Client exchanges wrapped APDUs with a server over an established
// connection. It is used by the probe command and by tests.
type Client struct {
	conn   net.Conn
	stream bool
	reader *StreamReader
	writer *StreamWriter

	// Source is the client wPort, Destination the logical device addressed.
	Source      uint16
	Destination uint16

	mu sync.Mutex
}

// NewClient wraps conn. Stream connections (TCP, pipes) are framed by the
// wrapper length; packet connections carry one frame per datagram.
func NewClient(conn net.Conn, transportType TransportType, source, destination uint16) *Client {
	return &Client{
		conn:        conn,
		stream:      transportType == TransportTypeTCP,
		reader:      NewStreamReader(conn),
		writer:      NewStreamWriter(conn),
		Source:      source,
		Destination: destination,
	}
}

// Dial connects to a server. network is "tcp" or "udp".
func Dial(ctx context.Context, network, address string, source, destination uint16) (*Client, error) {
	tt, err := ParseTransportType(network)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, tt, source, destination), nil
}

// Exchange sends apdu and waits for the reply. The context deadline, if
// any, bounds the whole exchange.
func (c *Client) Exchange(ctx context.Context, apdu []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	defer c.conn.SetDeadline(time.Time{})

	req := Frame{Source: c.Source, Destination: c.Destination, APDU: apdu}
	if err := c.send(req); err != nil {
		return nil, err
	}

	f, err := c.receive()
	if err != nil {
		return nil, err
	}
	return f.APDU, nil
}

func (c *Client) send(f Frame) error {
	if c.stream {
		return c.writer.WriteFrame(f)
	}
	b, err := f.Marshal()
	if err != nil {
		return err
	}
	_, err = c.conn.Write(b)
	return err
}

func (c *Client) receive() (Frame, error) {
	if c.stream {
		return c.reader.ReadFrame()
	}
	buf := make([]byte, MaxFrameSize)
	n, err := c.conn.Read(buf)
	if err != nil {
		return Frame{}, err
	}
	return ParseFrame(buf[:n])
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
