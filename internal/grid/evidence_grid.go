package grid

import (
	"sort"
	"sync"

	"github.com/patchcore/scanengine/pkg/models"
)

// EvidenceGrid is an ordered mapping from SpatialKey to GridCell with a
// bounded cell budget. Deleted keys are kept as tombstones until a
// compaction pass so allActiveCells can exclude them without disturbing
// iteration order for everything else.
type EvidenceGrid struct {
	mu        sync.Mutex
	cells     map[models.SpatialKey]models.GridCell
	tombstone map[models.SpatialKey]struct{}
	maxCells  int
}

// NewEvidenceGrid returns an empty grid bounded at maxCells active cells.
func NewEvidenceGrid(maxCells int) *EvidenceGrid {
	return &EvidenceGrid{
		cells:     make(map[models.SpatialKey]models.GridCell),
		tombstone: make(map[models.SpatialKey]struct{}),
		maxCells:  maxCells,
	}
}

// ActiveCount returns the number of non-tombstoned cells.
func (g *EvidenceGrid) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cells) - len(g.tombstone)
}

// insertLocked adds or replaces a cell, clearing any tombstone on its
// key, then evicts oldest-by-lastUpdatedMillis cells until back under
// maxCells.
func (g *EvidenceGrid) insertLocked(key models.SpatialKey, cell models.GridCell) {
	g.cells[key] = cell
	delete(g.tombstone, key)
	g.evictToCapacityLocked()
}

// updateLocked replaces an existing cell's state. lastUpdatedMillis must
// not regress; if the caller passes a smaller timestamp than what is
// already stored, the existing timestamp is kept so eviction order never
// becomes ambiguous.
func (g *EvidenceGrid) updateLocked(key models.SpatialKey, cell models.GridCell) {
	if existing, ok := g.cells[key]; ok && !isTombstoned(g, key) {
		if cell.LastUpdatedMillis < existing.LastUpdatedMillis {
			cell.LastUpdatedMillis = existing.LastUpdatedMillis
		}
	}
	g.cells[key] = cell
	delete(g.tombstone, key)
	g.evictToCapacityLocked()
}

func isTombstoned(g *EvidenceGrid, key models.SpatialKey) bool {
	_, ok := g.tombstone[key]
	return ok
}

// evictLocked marks key as a tombstone. A key with no stored cell is
// ignored, so ActiveCount stays equal to the number of non-tombstoned
// cells. A later Insert or Update of a tombstoned key clears its
// tombstone.
func (g *EvidenceGrid) evictLocked(key models.SpatialKey) {
	if _, ok := g.cells[key]; !ok {
		return
	}
	g.tombstone[key] = struct{}{}
}

// evictToCapacityLocked evicts oldest-by-lastUpdatedMillis active cells
// (ties broken by ascending key) until ActiveCount is within maxCells.
// Must be called with mu held.
func (g *EvidenceGrid) evictToCapacityLocked() {
	if g.maxCells <= 0 {
		return
	}
	for g.activeCountLocked() > g.maxCells {
		victim, found := g.oldestActiveLocked()
		if !found {
			return
		}
		g.tombstone[victim] = struct{}{}
	}
}

func (g *EvidenceGrid) activeCountLocked() int {
	return len(g.cells) - len(g.tombstone)
}

func (g *EvidenceGrid) oldestActiveLocked() (models.SpatialKey, bool) {
	var victim models.SpatialKey
	found := false
	for key, cell := range g.cells {
		if _, dead := g.tombstone[key]; dead {
			continue
		}
		if !found ||
			cell.LastUpdatedMillis < g.cells[victim].LastUpdatedMillis ||
			(cell.LastUpdatedMillis == g.cells[victim].LastUpdatedMillis && key.Less(victim)) {
			victim = key
			found = true
		}
	}
	return victim, found
}

// Get returns the cell stored at key, if any and not tombstoned.
func (g *EvidenceGrid) Get(key models.SpatialKey) (models.GridCell, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dead := g.tombstone[key]; dead {
		return models.GridCell{}, false
	}
	cell, ok := g.cells[key]
	return cell, ok
}

// AllActiveCells returns every non-tombstoned cell in ascending
// (mortonCode, level) order. Two successive calls without an
// intervening Apply must return identical sequences.
func (g *EvidenceGrid) AllActiveCells() []models.GridCell {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := make([]models.SpatialKey, 0, len(g.cells))
	for key := range g.cells {
		if _, dead := g.tombstone[key]; dead {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]models.GridCell, 0, len(keys))
	for _, key := range keys {
		out = append(out, g.cells[key])
	}
	return out
}

// Compact permanently removes tombstoned entries, freeing their storage.
// It never changes the observable result of AllActiveCells.
func (g *EvidenceGrid) Compact() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range g.tombstone {
		delete(g.cells, key)
	}
	g.tombstone = make(map[models.SpatialKey]struct{})
}

// opKind orders delta batch operations by eviction priority: evictions
// are dropped first on overflow, inserts last.
type opKind int

const (
	opEvict opKind = iota
	opUpdate
	opInsert
)

type delta struct {
	kind opKind
	key  models.SpatialKey
	cell models.GridCell
}

// DeltaBatch is a bounded queue of Insert/Update/Evict operations. When
// the batch overflows its capacity, operations are dropped in priority
// order Evict < Update < Insert (evictions dropped first) — deterministic
// given the batch's insertion order.
type DeltaBatch struct {
	capacity int
	ops      []delta
}

// NewDeltaBatch returns an empty batch bounded at capacity operations.
func NewDeltaBatch(capacity int) *DeltaBatch {
	return &DeltaBatch{capacity: capacity}
}

// Insert enqueues an insert operation.
func (b *DeltaBatch) Insert(key models.SpatialKey, cell models.GridCell) {
	b.ops = append(b.ops, delta{kind: opInsert, key: key, cell: cell})
}

// Update enqueues an update operation.
func (b *DeltaBatch) Update(key models.SpatialKey, cell models.GridCell) {
	b.ops = append(b.ops, delta{kind: opUpdate, key: key, cell: cell})
}

// Evict enqueues an evict operation.
func (b *DeltaBatch) Evict(key models.SpatialKey) {
	b.ops = append(b.ops, delta{kind: opEvict, key: key})
}

// Len returns the number of queued operations before overflow trimming.
func (b *DeltaBatch) Len() int { return len(b.ops) }

// trimmed returns the batch's operations after dropping lowest-priority
// entries (Evict first, then Update, then Insert) until capacity is met.
// Within a priority tier, operations are dropped from the front (oldest
// first), keeping the most recent operations of each kind.
func (b *DeltaBatch) trimmed() []delta {
	if b.capacity <= 0 || len(b.ops) <= b.capacity {
		return b.ops
	}
	kept := append([]delta(nil), b.ops...)
	for _, kind := range []opKind{opEvict, opUpdate, opInsert} {
		for len(kept) > b.capacity {
			idx := -1
			for i, op := range kept {
				if op.kind == kind {
					idx = i
					break
				}
			}
			if idx == -1 {
				break
			}
			kept = append(kept[:idx], kept[idx+1:]...)
		}
		if len(kept) <= b.capacity {
			break
		}
	}
	return kept
}

// Apply applies the batch's operations, in order, to the grid, after
// trimming to capacity. Capacity-triggered eviction inside the grid
// itself (maxCells) runs independently of batch trimming.
func (g *EvidenceGrid) Apply(b *DeltaBatch) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, op := range b.trimmed() {
		switch op.kind {
		case opInsert:
			g.insertLocked(op.key, op.cell)
		case opUpdate:
			g.updateLocked(op.key, op.cell)
		case opEvict:
			g.evictLocked(op.key)
		}
	}
}
