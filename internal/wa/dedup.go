package wa

import (
	"crypto/md5"
	"fmt"
	"sync"
	"time"
)

// Dedup remembers recently sent messages so retried webhook deliveries do
// not double-message a participant. Keys are a hash of recipient plus the
// first 100 bytes of content.
type Dedup struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

func NewDedup(window time.Duration) *Dedup {
	return &Dedup{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

func (d *Dedup) key(phone, content string) string {
	if len(content) > 100 {
		content = content[:100]
	}
	return fmt.Sprintf("%x", md5.Sum([]byte(phone+":"+content)))
}

// Seen reports whether the same message went to phone inside the window,
// recording it when not.
func (d *Dedup) Seen(phone, content string) bool {
	now := time.Now()
	k := d.key(phone, content)

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, at := range d.seen {
		if now.Sub(at) > d.window {
			delete(d.seen, key)
		}
	}

	if at, ok := d.seen[k]; ok && now.Sub(at) <= d.window {
		return true
	}
	d.seen[k] = now
	return false
}

// Len reports how many entries are cached, expired ones included.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
