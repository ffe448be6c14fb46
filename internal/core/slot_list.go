package core

// factHandle addresses a fact in the index arena
type factHandle int32

const noPosition = -1

// owner selects which of a fact's two owner lists an operation refers to
type owner uint8

const (
	ownerKey  owner = iota // (subject, kind) list
	ownerUnit              // contributing unit list
)

// slotList is an unordered list of fact handles. Every member stores its own
// position in the list, so removal is a swap with the last slot.
type slotList struct {
	handles []factHandle
}

func (l *slotList) len() int {
	if l == nil {
		return 0
	}
	return len(l.handles)
}

func (idx *RelationshipIndex) position(h factHandle, o owner) *int32 {
	f := &idx.facts[h]
	if o == ownerKey {
		return &f.keyPos
	}
	return &f.unitPos
}

// push appends h to list and records the slot in the fact
func (idx *RelationshipIndex) push(list *slotList, o owner, h factHandle) {
	*idx.position(h, o) = int32(len(list.handles))
	list.handles = append(list.handles, h)
}

// swapRemove removes h from list in O(1). The last member moves into the
// vacated slot and its stored position is updated.
func (idx *RelationshipIndex) swapRemove(list *slotList, o owner, h factHandle) {
	pos := idx.position(h, o)
	i := *pos
	if i == noPosition {
		return
	}
	last := len(list.handles) - 1
	moved := list.handles[last]
	list.handles[i] = moved
	*idx.position(moved, o) = i
	list.handles[last] = 0
	list.handles = list.handles[:last]
	*pos = noPosition

	// Give memory back once a list has shrunk well below its capacity.
	if cap(list.handles) > 64 && len(list.handles) < cap(list.handles)/4 {
		list.handles = append(make([]factHandle, 0, len(list.handles)*2), list.handles...)
	}
}
