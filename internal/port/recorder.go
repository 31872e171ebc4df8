package port

import "sync"

// Recorder is an in-memory Port. It keeps every byte written, in order.
type Recorder struct {
	mu     sync.Mutex
	writes []byte
	Err    error
}

func (r *Recorder) Out(v byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.writes = append(r.writes, v)
	return nil
}

// Writes returns a copy of everything written so far.
func (r *Recorder) Writes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.writes...)
}

// Last returns the most recent byte, or ok=false if nothing was written.
func (r *Recorder) Last() (v byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.writes) == 0 {
		return 0, false
	}
	return r.writes[len(r.writes)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.writes = r.writes[:0]
	r.mu.Unlock()
}

// Discard is a Port that drops everything.
type Discard struct{}

func (Discard) Out(byte) error { return nil }
