package lsp

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Clock produces cancelable timers. The harness uses the real clock; tests
// substitute a fake so timeout paths run without sleeping.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancelable timer handle.
type Timer interface {
	// Stop cancels the timer. It reports whether the timer was stopped
	// before firing.
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// callResult is the terminal outcome of one request.
type callResult struct {
	result json.RawMessage
	err    error
}

// pendingRequest tracks one outstanding call awaiting a correlated reply.
// Each entry is removed exactly once: on response, server error, timeout,
// or dispatcher close.
type pendingRequest struct {
	id    int64
	timer Timer
	done  chan callResult
}

// request is the outgoing JSON-RPC envelope.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// dispatcher correlates requests with responses over one server's stdin and
// stdout. It owns the pending-request table; all mutation happens under mu.
// There is exactly one writer path into the server (writeMu) and the harness
// runs exactly one reader goroutine feeding Dispatch.
type dispatcher struct {
	clock Clock
	log   Logger

	writeMu sync.Mutex
	w       io.Writer

	mu       sync.Mutex
	nextID   int64
	pending  map[int64]*pendingRequest
	closed   bool
	closeErr error

	onNotification func(method string, params json.RawMessage)
}

func newDispatcher(w io.Writer, clock Clock, log Logger) *dispatcher {
	return &dispatcher{
		clock:   clock,
		log:     log,
		w:       w,
		pending: make(map[int64]*pendingRequest),
	}
}

// Call sends a request and blocks until it settles: a correlated response,
// a protocol error reply, the timeout firing, context cancellation, or
// dispatcher close. The returned error is nil only on a successful result.
func (d *dispatcher) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	d.mu.Lock()
	if d.closed {
		err := d.closeErr
		d.mu.Unlock()
		return nil, err
	}
	d.nextID++
	id := d.nextID
	pr := &pendingRequest{
		id:   id,
		done: make(chan callResult, 1),
	}
	d.pending[id] = pr
	pr.timer = d.clock.AfterFunc(timeout, func() {
		d.settle(id, nil, ErrTimeout)
	})
	d.mu.Unlock()

	frame, err := encodeMessage(&request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		d.settle(id, nil, err)
		res := <-pr.done
		return nil, res.err
	}
	if err := d.write(frame); err != nil {
		d.settle(id, nil, err)
		res := <-pr.done
		return nil, res.err
	}

	select {
	case res := <-pr.done:
		return res.result, res.err
	case <-ctx.Done():
		d.settle(id, nil, ctx.Err())
		res := <-pr.done
		return res.result, res.err
	}
}

// Notify sends a fire-and-forget notification: no id, no pending entry.
func (d *dispatcher) Notify(method string, params any) error {
	d.mu.Lock()
	if d.closed {
		err := d.closeErr
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	frame, err := encodeMessage(&request{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return err
	}
	return d.write(frame)
}

// write sends one complete frame through the single writer path.
func (d *dispatcher) write(frame []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.w.Write(frame)
	return err
}

// Dispatch routes one decoded incoming message. Responses settle their
// pending entry by id; messages without an id go to the notification sink;
// anything unmatched is dropped with a debug log.
func (d *dispatcher) Dispatch(msg json.RawMessage) {
	var probe struct {
		ID     *int64          `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  *ResponseError  `json:"error"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		d.log.Debug("dropping undecodable message: %v", err)
		return
	}

	switch {
	case probe.ID != nil && probe.Method == "":
		if probe.Error != nil {
			d.settle(*probe.ID, nil, probe.Error)
		} else {
			d.settle(*probe.ID, probe.Result, nil)
		}
	case probe.Method != "" && probe.ID == nil:
		if d.onNotification != nil {
			d.onNotification(probe.Method, extractParams(msg))
		}
	default:
		// Server-to-client request. Nothing in this protocol family needs an
		// answer from us, so drop it rather than stall the server's id space.
		d.log.Debug("dropping server request %q (id %v)", probe.Method, probe.ID)
	}
}

// settle removes the pending entry for id and delivers its outcome. At most
// one caller wins; later settles for the same id are dropped with a debug
// log. This is what makes responses after timeout or stop harmless.
func (d *dispatcher) settle(id int64, result json.RawMessage, err error) {
	d.mu.Lock()
	pr, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	d.mu.Unlock()

	if !ok {
		d.log.Debug("dropping settle for unknown request id %d", id)
		return
	}

	if pr.timer != nil {
		pr.timer.Stop()
	}
	pr.done <- callResult{result: result, err: err}
}

// Close rejects every outstanding request with err and refuses further
// traffic. Safe to call more than once; only the first close settles anything.
func (d *dispatcher) Close(err error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.closeErr = err
	stale := make([]*pendingRequest, 0, len(d.pending))
	for id, pr := range d.pending {
		delete(d.pending, id)
		stale = append(stale, pr)
	}
	d.mu.Unlock()

	for _, pr := range stale {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		pr.done <- callResult{err: err}
	}
}

// PendingCount returns the number of outstanding requests.
func (d *dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// extractParams pulls the raw params field out of a notification envelope.
func extractParams(msg json.RawMessage) json.RawMessage {
	var envelope struct {
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return nil
	}
	return envelope.Params
}
