// Package hwlink talks to the balance machine's controller over a serial
// line.
//
// The protocol is line based. The controller sends a line containing
// "CYCLE END" when a part is ready to be read; every such line is one
// trigger. The station answers with one of:
//
//	OK\n DECLAMP\n     reading confirmed and stored
//	FAIL\n DECLAMP\n   reading rejected
//	NO_FRAME\n         no camera frame was available
//
// The link is opened once. When the connection drops the read loop ends,
// the link becomes disconnected and SendResult turns into a no-op. There is
// no automatic reconnection; the station must be restarted (or the link
// reopened by its owner) once the cable or controller is back.
package hwlink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ironsheep/balance-station/internal/logging"
)

// TriggerToken marks a capture request from the controller.
const TriggerToken = "CYCLE END"

// ErrDisconnected reports a link whose connection was lost. Reconnection is
// not attempted automatically.
var ErrDisconnected = errors.New("hardware link disconnected")

// Result is the verdict sent back to the controller.
type Result int

const (
	Pass Result = iota
	Fail
	NoFrame
)

func (r Result) String() string {
	switch r {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	case NoFrame:
		return "NO_FRAME"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// Tokens returns the lines written for r.
func (r Result) Tokens() []string {
	switch r {
	case Pass:
		return []string{"OK\n", "DECLAMP\n"}
	case Fail:
		return []string{"FAIL\n", "DECLAMP\n"}
	case NoFrame:
		return []string{"NO_FRAME\n"}
	}
	return nil
}

// drainer is implemented by serial ports that can flush their output.
type drainer interface {
	Drain() error
}

// Link is an open controller connection.
type Link struct {
	name string
	conn io.ReadWriteCloser

	triggers chan struct{}
	closing  chan struct{}
	done     chan struct{}

	mu        sync.Mutex
	connected bool
	closeOnce sync.Once
}

// New starts the read loop on conn. name identifies the link in logs.
func New(conn io.ReadWriteCloser, name string) *Link {
	l := &Link{
		name:      name,
		conn:      conn,
		triggers:  make(chan struct{}, 8),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		connected: true,
	}
	go l.readLoop()
	return l
}

// Triggers delivers one value per trigger line. It is never closed; use
// Done to learn that the read loop has ended.
func (l *Link) Triggers() <-chan struct{} {
	return l.triggers
}

// Done is closed when the read loop ends.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Connected reports whether the connection is still up.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Name returns the port name.
func (l *Link) Name() string {
	return l.name
}

// SendResult writes the tokens for r. On a disconnected link it does
// nothing and returns nil. A failed write marks the link disconnected and
// returns the error.
func (l *Link) SendResult(r Result) error {
	tokens := r.Tokens()
	if tokens == nil {
		return fmt.Errorf("unknown result %d", int(r))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		log.Printf("hwlink %s: not connected, %s not sent", l.name, r)
		return nil
	}
	for _, tok := range tokens {
		logging.Debugf("hwlink %s: writing %q", l.name, tok)
		if _, err := io.WriteString(l.conn, tok); err != nil {
			l.connected = false
			return fmt.Errorf("%w: write %s: %v", ErrDisconnected, strings.TrimSpace(tok), err)
		}
	}
	if d, ok := l.conn.(drainer); ok {
		if err := d.Drain(); err != nil {
			log.Printf("hwlink %s: drain failed: %v", l.name, err)
		}
	}
	log.Printf("hwlink %s: sent %s", l.name, r)
	return nil
}

// Close stops the read loop, closes the connection and waits up to grace
// for the loop to exit.
func (l *Link) Close(grace time.Duration) error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closing)
		// Closing first unblocks a pending read or write.
		err = l.conn.Close()
		l.mu.Lock()
		l.connected = false
		l.mu.Unlock()
	})

	select {
	case <-l.done:
	case <-time.After(grace):
		log.Printf("hwlink %s: read loop did not exit within %v", l.name, grace)
	}
	return err
}

func (l *Link) readLoop() {
	defer close(l.done)

	r := bufio.NewReader(l.conn)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			logging.Debugf("hwlink %s: received %q", l.name, line)
		}
		if strings.Contains(line, TriggerToken) {
			log.Printf("hwlink %s: capture triggered", l.name)
			select {
			case l.triggers <- struct{}{}:
			case <-l.closing:
				return
			}
		}
		if err != nil {
			l.mu.Lock()
			l.connected = false
			l.mu.Unlock()

			select {
			case <-l.closing:
			default:
				log.Printf("hwlink %s: connection lost: %v", l.name, err)
			}
			return
		}
	}
}
