package hw

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"golang.org/x/net/websocket"
)

// SerialConfig describes a serial device.
type SerialConfig struct {
	Device string
	Baud   int
	// ReadTimeout bounds each read; reads timing out are retried.
	ReadTimeout time.Duration
}

// OpenSerial opens a serial device as a UART.
func OpenSerial(conf SerialConfig) (*StreamPort, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        conf.Device,
		Baud:        conf.Baud,
		ReadTimeout: conf.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open serial %s", conf.Device)
	}
	if conf.ReadTimeout > 0 {
		return NewTimeoutStreamPort(port), nil
	}
	return NewStreamPort(port), nil
}

type stdio struct {
	io.Reader
	io.Writer
}

// OpenStdio uses the process stdin/stdout as a UART.
func OpenStdio() *StreamPort {
	return NewStreamPort(&stdio{Reader: os.Stdin, Writer: os.Stdout})
}

// NewWebSocketPort uses a websocket connection as a UART.
// Data is carried in binary frames.
func NewWebSocketPort(conn *websocket.Conn) *StreamPort {
	conn.PayloadType = websocket.BinaryFrame
	return NewStreamPort(conn)
}
