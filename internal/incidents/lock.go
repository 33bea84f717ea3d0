package incidents

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// stripedLock serialises work on the same incident id within the process.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
