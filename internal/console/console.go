package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/ironsheep/balance-station/internal/capture"
	"github.com/ironsheep/balance-station/internal/config"
	"github.com/ironsheep/balance-station/internal/confirm"
	"github.com/ironsheep/balance-station/internal/logging"
	"github.com/ironsheep/balance-station/internal/reading"
	"github.com/ironsheep/balance-station/internal/store"
)

// Station is the part of the capture orchestrator the console drives.
type Station interface {
	Status() capture.Status
	SelectPart(ctx context.Context, code string) (*reading.PartLimits, error)
	Trigger(ctx context.Context) bool
	Feed(text string) (confirm.Outcome, bool)
	CancelScan() bool
	Observe(fn capture.Observer)
}

// Database is the part of the store the console reads (*store.Store).
type Database interface {
	ListParts(ctx context.Context) ([]reading.PartLimits, error)
	RecentReadings(ctx context.Context, limit int) ([]store.Record, error)
	Ping(ctx context.Context) error
}

// Console handles operator protocol communication.
type Console struct {
	station Station
	db      Database
	cfg     *config.Store

	// out carries every encoded message to the writer goroutine; stop is
	// closed when Run ends. Neither is ever sent on while mu is held.
	out  chan any
	stop chan struct{}

	mu      sync.Mutex
	running bool
}

// Request represents an incoming JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents an outgoing JSON-RPC response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Notification represents an outgoing notification (no ID)
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a console for station.
func New(station Station, db Database, cfg *config.Store) *Console {
	c := &Console{
		station: station,
		db:      db,
		cfg:     cfg,
	}
	station.Observe(c.onEvent)
	return c
}

// Run reads requests from r and writes responses and notifications to w
// until r is exhausted. ctx is handed to the cycles it starts.
func (c *Console) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	out := make(chan any, 64)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.write(json.NewEncoder(w), out, stop)
	}()

	c.mu.Lock()
	c.out = out
	c.stop = stop
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(stop)
		<-done
	}()

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			log.Printf("console: failed to parse request: %v", err)
			c.send(c.errorResponse(nil, -32700, "Parse error", err.Error()))
			continue
		}

		logging.Debugf("console: request %s id=%v", req.Method, req.ID)
		if resp := c.handleRequest(ctx, &req); resp != nil {
			c.send(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// write encodes queued messages until stop is closed, then flushes what is
// still queued.
func (c *Console) write(encoder *json.Encoder, out <-chan any, stop <-chan struct{}) {
	encode := func(msg any) {
		if err := encoder.Encode(msg); err != nil {
			log.Printf("console: failed to encode message: %v", err)
		}
	}
	for {
		select {
		case msg := <-out:
			encode(msg)
		case <-stop:
			for {
				select {
				case msg := <-out:
					encode(msg)
				default:
					return
				}
			}
		}
	}
}

// queue returns the writer queue, or nil when Run is not active.
func (c *Console) queue() (chan<- any, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil, nil
	}
	return c.out, c.stop
}

// send queues a response. It blocks until there is room or Run ends.
func (c *Console) send(msg any) {
	out, stop := c.queue()
	if out == nil {
		return
	}
	select {
	case out <- msg:
	case <-stop:
	}
}

// notify queues a notification, dropping it when the writer is behind so
// the cycle goroutine never waits on the display.
func (c *Console) notify(method string, params any) {
	out, _ := c.queue()
	if out == nil {
		return
	}
	select {
	case out <- &Notification{JSONRPC: "2.0", Method: method, Params: params}:
	default:
		log.Printf("console: dropped %s notification", method)
	}
}

func (c *Console) onEvent(ev capture.Event) {
	if ev.Result != nil {
		c.notify("cycle/result", ev.Result)
		return
	}
	c.notify("cycle/state", map[string]interface{}{
		"cycle_id": ev.CycleID,
		"state":    ev.State,
	})
}

// handleRequest routes requests to appropriate handlers
func (c *Console) handleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "ping":
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	case "methods/list":
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{"methods": Methods()},
		}
	}

	handler, ok := c.handlers()[req.Method]
	if !ok {
		return c.errorResponse(req.ID, -32601, fmt.Sprintf("Method not found: %s", req.Method), "")
	}
	result, err := handler(ctx, req.Params)
	if err != nil {
		var pe *paramsError
		if asParamsError(err, &pe) {
			return c.errorResponse(req.ID, -32602, "Invalid params", pe.Error())
		}
		return c.errorResponse(req.ID, -32000, "Request failed", err.Error())
	}
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (c *Console) errorResponse(id interface{}, code int, message, data string) *Response {
	resp := &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}
	if data != "" {
		resp.Error.Data = data
	}
	return resp
}
