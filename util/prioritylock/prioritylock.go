// Package prioritylock provides a lock where block processing and queries
// go ahead of background maintenance such as compaction.
package prioritylock

import "sync"

// Mutex is a read-write lock with two classes of holders. High priority
// holders take it for writing (HighPriorityLock) or for reading
// (HighPriorityReadLock). Low priority holders take it for writing only,
// and wait while any high priority holder holds or waits for it.
type Mutex struct {
	data sync.RWMutex

	pendingMtx  sync.Mutex
	pendingCond *sync.Cond
	highPending int
}

// New returns an unlocked Mutex.
func New() *Mutex {
	mtx := &Mutex{}
	mtx.pendingCond = sync.NewCond(&mtx.pendingMtx)
	return mtx
}

func (mtx *Mutex) addHighPending() {
	mtx.pendingMtx.Lock()
	mtx.highPending++
	mtx.pendingMtx.Unlock()
}

func (mtx *Mutex) removeHighPending() {
	mtx.pendingMtx.Lock()
	mtx.highPending--
	if mtx.highPending == 0 {
		mtx.pendingCond.Broadcast()
	}
	mtx.pendingMtx.Unlock()
}

// HighPriorityLock locks mtx for writing.
func (mtx *Mutex) HighPriorityLock() {
	mtx.addHighPending()
	mtx.data.Lock()
}

// HighPriorityUnlock undoes a HighPriorityLock.
func (mtx *Mutex) HighPriorityUnlock() {
	mtx.data.Unlock()
	mtx.removeHighPending()
}

// HighPriorityReadLock locks mtx for reading. Readers hold it concurrently.
func (mtx *Mutex) HighPriorityReadLock() {
	mtx.addHighPending()
	mtx.data.RLock()
}

// HighPriorityReadUnlock undoes a HighPriorityReadLock.
func (mtx *Mutex) HighPriorityReadUnlock() {
	mtx.data.RUnlock()
	mtx.removeHighPending()
}

// LowPriorityLock locks mtx for writing once no high priority holder holds
// or waits for it.
func (mtx *Mutex) LowPriorityLock() {
	mtx.pendingMtx.Lock()
	for mtx.highPending > 0 {
		mtx.pendingCond.Wait()
	}
	mtx.pendingMtx.Unlock()
	mtx.data.Lock()
}

// LowPriorityUnlock undoes a LowPriorityLock.
func (mtx *Mutex) LowPriorityUnlock() {
	mtx.data.Unlock()
}
