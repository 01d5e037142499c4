// Package serialmux provides an abstraction over the serial bridge of the
// skin controller, with the ability for multiple clients to subscribe to
// frame lines from the port and to send commands to the single bridge device.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
)

// ErrWriteFailed is returned when a command could not be written in full.
var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// maxFrameLineBytes bounds the line scanner. A 252-cell frame of 5-digit
// decimal readings plus separators stays well under this.
const maxFrameLineBytes = 4096

// subscriberBuffer is the per-subscriber channel depth. A momentarily busy
// subscriber keeps a short backlog; beyond that frames are dropped rather
// than blocking the fan-out.
const subscriberBuffer = 16

// SerialMux is a generic serial port multiplexer that allows multiple clients
// to subscribe to frame lines from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving line events from the
	// serial port. The channel ID identifies the channel when unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided bridge command to the serial port.
	SendCommand(string) error
	// Monitor reads frame lines from the serial port and fans them out to
	// subscribers until the context is cancelled.
	Monitor(context.Context) error
	// Close closes all subscribed channels and the serial port.
	Close() error

	// Initialize puts the skin controller into raw streaming mode.
	Initialize() error

	// AttachDebugRoutes attaches debugging endpoints (send-command, live
	// tail) under /debug/serial/ on the given mux. Not for public exposure.
	AttachDebugRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize configures the skin bridge for the conditioning engine: normal
// mode first so register writes take, controller-internal auto-calibration
// on, then the raw matrix stream.
func (s *SerialMux[T]) Initialize() error {
	for _, command := range []string{
		"R0", // normal mode while configuring
		"A1", // enable controller auto-calibration register
		"S5", // 50 Hz frame rate
		"R1", // switch to test mode and stream the raw matrix
	} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send init command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends a command to the serial port. Only commands on the bridge
// allow-list are accepted; anything else could wedge the controller firmware.
func (s *SerialMux[T]) SendCommand(command string) error {
	if !IsAllowedCommand(command) {
		return fmt.Errorf("command %q not in bridge allow-list", command)
	}
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	payload := command
	if !bytes.HasSuffix([]byte(payload), []byte("\n")) {
		payload += "\n"
	}
	n, err := s.port.Write([]byte(payload))
	if err != nil {
		return err
	}
	if n != len(payload) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor monitors the serial port for frame lines and sends them to
// subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Buffer(make([]byte, maxFrameLineBytes), maxFrameLineBytes)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// read from the serial port on a separate goroutine so the blocking
	// scan.Scan does not interfere with the outer loop awaiting lines and
	// context cancellation
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			// if the channel is closed, we're done reading from the port
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// a slow subscriber loses the frame rather than
					// blocking the whole fan-out; the conditioning engine
					// treats it as "no frame this cycle"
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}
