package pursuit

import (
	"sync"

	. "github.com/iotaledger/iota.go/trinary"
)

type hashSet struct {
	sync.RWMutex
	themap map[Hash]struct{}
}

func (s *hashSet) Contains(hash Hash) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.themap[hash]
	return ok
}

func (s *hashSet) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.themap)
}

// Blacklist contains bundles which can never be confirmed, e.g. with invalid signature.
// Entries are never removed
type Blacklist struct {
	hashSet
}

func NewBlacklist() *Blacklist {
	return &Blacklist{hashSet{themap: make(map[Hash]struct{})}}
}

// Add returns false if the bundle was already blacklisted
func (bl *Blacklist) Add(bundleHash Hash) bool {
	bl.Lock()
	defer bl.Unlock()
	if _, ok := bl.themap[bundleHash]; ok {
		return false
	}
	bl.themap[bundleHash] = struct{}{}
	return true
}

// InFlight is a set of bundles under active pursuit. At most one pursuit per bundle
type InFlight struct {
	hashSet
}

func NewInFlight() *InFlight {
	return &InFlight{hashSet{themap: make(map[Hash]struct{})}}
}

// TryAcquire adds the bundle. Returns false if it is already in flight
func (fl *InFlight) TryAcquire(bundleHash Hash) bool {
	fl.Lock()
	defer fl.Unlock()
	if _, ok := fl.themap[bundleHash]; ok {
		return false
	}
	fl.themap[bundleHash] = struct{}{}
	return true
}

func (fl *InFlight) Release(bundleHash Hash) {
	fl.Lock()
	defer fl.Unlock()
	delete(fl.themap, bundleHash)
}
