package strategy

import (
	"hash/crc32"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
)

// consistentHashStrategy maps keys onto a hash ring of virtual nodes so that
// a given key keeps hitting the same endpoint even as the pool changes.
type consistentHashStrategy struct {
	virtualNodes int
	ring         atomic.Value
	mutex        sync.Mutex
	hashKey      atomic.Uint32
	keySet       atomic.Bool
}

type ringSnapshot struct {
	positions []uint32
	owners    map[uint32]*endpoint.Endpoint
}

func buildRing(endpoints []*endpoint.Endpoint, vnodes int) *ringSnapshot {
	rs := &ringSnapshot{
		positions: make([]uint32, 0, len(endpoints)*vnodes),
		owners:    make(map[uint32]*endpoint.Endpoint),
	}

	for _, ep := range endpoints {
		for i := 0; i < vnodes; i++ {
			key := ep.ID() + "#" + strconv.Itoa(i)
			hash := crc32.ChecksumIEEE([]byte(key))

			rs.positions = append(rs.positions, hash)
			rs.owners[hash] = ep
		}
	}

	sort.Slice(rs.positions, func(i, j int) bool { return rs.positions[i] < rs.positions[j] })
	return rs
}

// lookup walks the ring clockwise from the key's position and returns the
// first owner present in the candidate set. Keys whose owner is out of
// rotation fail over to the ring successor and come back once the owner
// reappears among the candidates.
func (r *ringSnapshot) lookup(hash uint32, candidates []*endpoint.Endpoint) *endpoint.Endpoint {
	if r == nil || len(r.positions) == 0 {
		return nil
	}

	allowed := make(map[string]*endpoint.Endpoint, len(candidates))
	for _, ep := range candidates {
		allowed[ep.ID()] = ep
	}

	start := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})

	for i := 0; i < len(r.positions); i++ {
		owner := r.owners[r.positions[(start+i)%len(r.positions)]]
		if ep, ok := allowed[owner.ID()]; ok {
			return ep
		}
	}

	return nil
}

func (s *consistentHashStrategy) Select(endpoints []*endpoint.Endpoint) *endpoint.Endpoint {
	if len(endpoints) == 0 {
		return nil
	}

	val := s.ring.Load()
	rs, _ := val.(*ringSnapshot)

	if rs == nil || len(rs.positions) == 0 {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		val := s.ring.Load()
		rs, _ = val.(*ringSnapshot)
		if rs == nil || len(rs.positions) == 0 {
			rs = buildRing(endpoints, s.virtualNodes)
			s.ring.Store(rs)
		}
	}

	return rs.lookup(s.currentKey(), endpoints)
}

// currentKey returns the caller-supplied hash, or a random draw when no key
// was set so keyless calls still spread across the ring.
func (s *consistentHashStrategy) currentKey() uint32 {
	if s.keySet.Load() {
		return s.hashKey.Load()
	}

	return crc32.ChecksumIEEE([]byte(uuid.NewString()))
}

func (s *consistentHashStrategy) SetKey(key string) {
	hash := crc32.ChecksumIEEE([]byte(key))
	s.hashKey.Store(hash)
	s.keySet.Store(true)
}

func NewConsistentHashStrategy(virtualNodes int) Strategy {
	if virtualNodes <= 0 {
		virtualNodes = 100
	}

	hashStrategy := &consistentHashStrategy{virtualNodes: virtualNodes}

	hashStrategy.ring.Store(&ringSnapshot{
		positions: nil,
		owners:    nil,
	})

	return hashStrategy
}

// Rebuild recomputes the ring for the given endpoint set. The load balancer
// calls this whenever endpoints are added or removed.
func (s *consistentHashStrategy) Rebuild(endpoints []*endpoint.Endpoint) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rs := buildRing(endpoints, s.virtualNodes)
	s.ring.Store(rs)
}
