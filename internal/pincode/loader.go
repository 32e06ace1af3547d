package pincode

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader builds the Master from a Source exactly once per process. Concurrent
// first callers share a single Source.Load; a failed load is not remembered,
// so the next call retries.
type Loader struct {
	src Source

	sf     singleflight.Group
	mu     sync.RWMutex
	master *Master
}

func NewLoader(src Source) *Loader {
	return &Loader{src: src}
}

// Master returns the loaded master, loading it on first use. The load runs
// detached from ctx so a caller that gives up does not fail the others
// waiting on it; that caller alone gets ctx.Err().
func (l *Loader) Master(ctx context.Context) (*Master, error) {
	l.mu.RLock()
	m := l.master
	l.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := l.sf.DoChan("master", func() (interface{}, error) {
		l.mu.RLock()
		m := l.master
		l.mu.RUnlock()
		if m != nil {
			return m, nil
		}
		records, err := l.src.Load(loadCtx)
		if err != nil {
			return nil, err
		}
		m, err = NewMaster(records)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.master = m
		l.mu.Unlock()
		return m, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Master), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loaded reports whether a master is available without triggering a load.
func (l *Loader) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.master != nil
}
