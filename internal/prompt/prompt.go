// internal/prompt/prompt.go
//
// Asynchronous request/response bridge between connection workflows and the
// interactive prompt surface. A workflow posts a request and suspends until
// the surface answers it or the broker is closed; closing resolves every
// in-flight request to the declined sentinel so callers never hang.

package prompt

import (
	"sync"
)

// Kind selects the answer shape of a request.
type Kind int

const (
	KindString Kind = iota
	KindBoolean
	KindBiometric
)

// Request is a single question for the operator.
type Request struct {
	Kind        Kind
	Instruction string // optional context line, may be empty
	Label       string // the question itself
	Secret      bool   // mask input while typing
	KeyHandle   string // biometric requests: nickname of the gated key

	reply chan Response
	once  sync.Once
}

// Response carries the operator's answer. Answered=false means the request
// was canceled or dismissed; callers must treat that as a decline, distinct
// from an empty string.
type Response struct {
	Answered  bool
	Text      string
	Confirmed bool
}

// Answer resolves the request. Only the first call has any effect.
func (r *Request) Answer(resp Response) {
	r.once.Do(func() {
		r.reply <- resp
	})
}

// Decline resolves the request negatively.
func (r *Request) Decline() {
	r.Answer(Response{})
}

// Broker routes requests to a single prompt surface.
type Broker struct {
	requests chan *Request

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewBroker returns a broker ready for use. The prompt surface must drain
// Requests(); until it does, callers stay suspended.
func NewBroker() *Broker {
	return &Broker{
		requests: make(chan *Request, 4),
		done:     make(chan struct{}),
	}
}

// Requests is consumed by the prompt surface.
func (b *Broker) Requests() <-chan *Request { return b.requests }

// Done is closed when the broker shuts down.
func (b *Broker) Done() <-chan struct{} { return b.done }

// Close cancels all pending and future requests. Safe to call more than once
// and safe to call while requests are in flight.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

func (b *Broker) ask(req *Request) Response {
	req.reply = make(chan Response, 1)

	select {
	case b.requests <- req:
	case <-b.done:
		return Response{}
	}

	select {
	case resp := <-req.reply:
		return resp
	case <-b.done:
		return Response{}
	}
}

// RequestString asks for a text answer. ok=false means canceled; callers must
// not confuse that with an empty answer.
func (b *Broker) RequestString(instruction, label string, secret bool) (value string, ok bool) {
	resp := b.ask(&Request{
		Kind:        KindString,
		Instruction: instruction,
		Label:       label,
		Secret:      secret,
	})
	return resp.Text, resp.Answered
}

// RequestBoolean asks a yes/no question. ok=false means canceled, which
// callers treat as "no".
func (b *Broker) RequestBoolean(instruction, label string) (value bool, ok bool) {
	resp := b.ask(&Request{
		Kind:        KindBoolean,
		Instruction: instruction,
		Label:       label,
	})
	return resp.Confirmed, resp.Answered
}

// RequestBiometric asks for a hardware confirmation gate on keyHandle.
// Cancellation reads as a failed confirmation.
func (b *Broker) RequestBiometric(label, keyHandle string) bool {
	resp := b.ask(&Request{
		Kind:      KindBiometric,
		Label:     label,
		KeyHandle: keyHandle,
	})
	return resp.Answered && resp.Confirmed
}
