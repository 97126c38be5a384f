/*------------------------------------------------------------------
 *
 * Purpose:	Song-request sources: a UDP listener accepting one JSON
 *		datagram per request, and a file-based emulation mode
 *		reading the same JSON shape one line at a time. Both feed
 *		song names into the same playback entry point.
 *
 *---------------------------------------------------------------*/
package control

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Port is the UDP port the control listener binds, per
// original_source/src/udp.c's UDP_PORT.
const Port = 5005

// ReadTimeout bounds how long a single receive waits before giving up
// and letting the caller decide whether to keep listening.
const ReadTimeout = 30 * time.Second

// ErrTimeout is returned when no datagram arrived within ReadTimeout.
var ErrTimeout = errors.New("control: no request received before timeout")

type songRequest struct {
	Song string `json:"song"`
}

type songAck struct {
	Ack  string `json:"ack"`
	Song string `json:"song"`
}

// Listener accepts one song name per UDP datagram and acks it.
type Listener struct {
	conn    *net.UDPConn
	Log     *log.Logger
	timeout time.Duration
}

// Listen binds the control UDP port with the spec's 30s read timeout.
func Listen(lg *log.Logger) (*Listener, error) {
	return listen(lg, Port, ReadTimeout)
}

func listen(lg *log.Logger, port int, timeout time.Duration) (*Listener, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("control: listen: %w", err)
	}
	return &Listener{conn: conn, Log: lg, timeout: timeout}, nil
}

// Close releases the UDP socket.
func (l *Listener) Close() error { return l.conn.Close() }

// Next blocks for up to the listener's read timeout waiting for a
// single {"song":"<name>"} datagram, acks it, and returns the song
// name.
func (l *Listener) Next() (string, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(l.timeout)); err != nil {
		return "", fmt.Errorf("control: set deadline: %w", err)
	}

	buf := make([]byte, 1024)
	n, clientAddr, err := l.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("control: read: %w", err)
	}

	var req songRequest
	if err := json.Unmarshal(buf[:n], &req); err != nil || req.Song == "" {
		return "", fmt.Errorf("control: invalid request from %s: %w", clientAddr, err)
	}
	l.Log.Info("received control request", "song", req.Song, "from", clientAddr)

	ack, err := json.Marshal(songAck{Ack: "ok", Song: req.Song})
	if err != nil {
		return req.Song, nil
	}
	if _, err := l.conn.WriteToUDP(ack, clientAddr); err != nil {
		l.Log.Warn("failed to send control ack", "err", err)
	}
	return req.Song, nil
}

// EmulatedSource reads one JSON song request per line from a file,
// the Go counterpart of emulate_udp_from_file.
type EmulatedSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

// OpenEmulated opens filename for line-at-a-time song request
// emulation.
func OpenEmulated(filename string) (*EmulatedSource, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("control: open emulation file: %w", err)
	}
	return &EmulatedSource{scanner: bufio.NewScanner(f), closer: f}, nil
}

// Next returns the next line's song name, or io.EOF once the file is
// exhausted. Lines with no parseable "song" field are skipped.
func (e *EmulatedSource) Next() (string, error) {
	for e.scanner.Scan() {
		var req songRequest
		if err := json.Unmarshal(e.scanner.Bytes(), &req); err != nil || req.Song == "" {
			continue
		}
		return req.Song, nil
	}
	if err := e.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Close releases the underlying file.
func (e *EmulatedSource) Close() error { return e.closer.Close() }
