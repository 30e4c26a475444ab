package cache

import (
	"strconv"
	"time"
)

// DeferList remembers per-id failure timestamps so a rejected entity is not
// re-attempted until a skip window elapses. Entries expire naturally; they
// are never explicitly deleted.
type DeferList struct {
	kv     *KV
	window time.Duration
}

// NewDeferList wraps a KV with a skip window (typically 24h).
func NewDeferList(kv *KV, window time.Duration) *DeferList {
	return &DeferList{kv: kv, window: window}
}

// Deferred reports whether id failed less than one window ago. An entry
// with an unparseable timestamp is treated as expired.
func (d *DeferList) Deferred(id string, now time.Time) bool {
	v, ok := d.kv.Get(id)
	if !ok {
		return false
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false
	}
	if time.Unix(ts, 0).Add(d.window).After(now) {
		defersHonored.Inc()
		return true
	}
	return false
}

// Defer records a failure for id at the given time, restarting its window.
func (d *DeferList) Defer(id string, now time.Time) {
	d.kv.Set(id, strconv.FormatInt(now.Unix(), 10))
	defersRecorded.Inc()
}

// Window returns the configured skip window.
func (d *DeferList) Window() time.Duration {
	return d.window
}
