package transport

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

const (
	KindSession  = "session"
	KindTemplate = "template"
)

// Call is one recorded send.
type Call struct {
	Kind     string
	To       string
	Body     string
	MediaURL string
	Vars     map[string]string
	At       time.Time
}

// Recorder is an in-memory Messenger. Fail, when set, decides per call
// whether the send fails.
type Recorder struct {
	Fail func(c Call) error

	mu    sync.Mutex
	calls []Call
	seq   int
}

func (r *Recorder) SendSession(ctx context.Context, to, body, mediaURL string) (string, error) {
	return r.record(ctx, Call{Kind: KindSession, To: to, Body: body, MediaURL: mediaURL})
}

func (r *Recorder) SendTemplate(ctx context.Context, to string, vars map[string]string) (string, error) {
	return r.record(ctx, Call{Kind: KindTemplate, To: to, Vars: maps.Clone(vars)})
}

func (r *Recorder) record(ctx context.Context, c Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.At = time.Now()
	if r.Fail != nil {
		if err := r.Fail(c); err != nil {
			return "", err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.calls = append(r.calls, c)
	return fmt.Sprintf("REC%04d", r.seq), nil
}

// Calls returns the successful sends in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the successful sends addressed to one recipient.
func (r *Recorder) CallsTo(to string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.To == to {
			out = append(out, c)
		}
	}
	return out
}
