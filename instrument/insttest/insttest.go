// Package insttest provides a scripted Transport for driver tests.
package insttest

import (
	"fmt"
	"strings"
	"sync"
)

// Fake records every command and answers queries from Replies. A reply
// slice is consumed front to back; its last element repeats once the rest
// are used.
type Fake struct {
	mu      sync.Mutex
	Sent    []string
	Replies map[string][]string
	Err     error // returned by every call when set
}

// New returns a Fake with the given query → reply pairs.
func New(pairs ...string) *Fake {
	f := &Fake{Replies: map[string][]string{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		f.Replies[pairs[i]] = append(f.Replies[pairs[i]], pairs[i+1])
	}
	return f
}

func (f *Fake) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, strings.TrimSpace(cmd))
	return f.Err
}

func (f *Fake) Query(cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, cmd)
	if f.Err != nil {
		return "", f.Err
	}
	rs, ok := f.Replies[cmd]
	if !ok || len(rs) == 0 {
		return "", fmt.Errorf("no reply scripted for %q", cmd)
	}
	r := rs[0]
	if len(rs) > 1 {
		f.Replies[cmd] = rs[1:]
	}
	return r + "\n", nil
}

// Commands returns a copy of everything sent so far.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Sent...)
}
