// Package remotetest provides a recording remote.Printer for tests.
package remotetest

import (
	"sync"
	"sync/atomic"

	"github.com/thereceipt/printer-bridge/internal/remote"
)

// Call is one recorded invocation.
type Call struct {
	Method string
	Args   []any
}

// Recorder records every call it receives. Fail makes a method return an
// error; Gate, when set, blocks each call until a value is received.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error

	// Gate blocks calls until it yields a value. Nil means never block.
	Gate chan struct{}
	// OnCall runs after the call is recorded and before Gate is consulted.
	OnCall func(Call)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{fail: make(map[string]error)}
}

// Fail makes method return err from now on. A nil err clears it.
func (r *Recorder) Fail(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, method)
		return
	}
	r.fail[method] = err
}

// Calls returns a copy of the recorded calls in arrival order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Methods returns only the method names of the recorded calls.
func (r *Recorder) Methods() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// Count returns how many calls were recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// MaxInFlight is the highest number of calls observed running at once.
func (r *Recorder) MaxInFlight() int {
	return int(r.maxInFlight.Load())
}

func (r *Recorder) record(method string, args ...any) error {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		cur := r.maxInFlight.Load()
		if n <= cur || r.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	call := Call{Method: method, Args: args}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	err := r.fail[method]
	hook := r.OnCall
	r.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if r.Gate != nil {
		<-r.Gate
	}
	return err
}

func (r *Recorder) PrintText(text string) error {
	return r.record("PrintText", text)
}

func (r *Recorder) PrintEpson(data []byte) error {
	return r.record("PrintEpson", data)
}

func (r *Recorder) PrintBitmap(bmp *remote.Bitmap) error {
	return r.record("PrintBitmap", bmp)
}

func (r *Recorder) PrintBarCode(data string, symbology, height, width int) error {
	return r.record("PrintBarCode", data, symbology, height, width)
}

func (r *Recorder) PrintQRCode(data string, moduleSize, errorLevel int) error {
	return r.record("PrintQRCode", data, moduleSize, errorLevel)
}

func (r *Recorder) SetAlignment(alignment int) error {
	return r.record("SetAlignment", alignment)
}

func (r *Recorder) SetTextSize(size float32) error {
	return r.record("SetTextSize", size)
}

func (r *Recorder) NextLine(lines int) error {
	return r.record("NextLine", lines)
}

func (r *Recorder) SetTextBold(bold bool) error {
	return r.record("SetTextBold", bold)
}

func (r *Recorder) PrintTableText(text []string, weight []int, alignment []int) error {
	return r.record("PrintTableText", text, weight, alignment)
}

var _ remote.Printer = (*Recorder)(nil)
