package featurea

// instance is one live component in a module arena
type instance struct {
	key      Key
	value    any
	cleanups []cleanupEntry
}

// instanceArena holds the live components of one module. Slots are kept in
// creation order so teardown can release them in reverse.
type instanceArena struct {
	slots      []*instance
	index      map[Key]int
	generation uint64
}

func newInstanceArena() *instanceArena {
	return &instanceArena{
		index: make(map[Key]int),
	}
}

func (a *instanceArena) load(key Key) (*instance, bool) {
	idx, ok := a.index[key]
	if !ok {
		return nil, false
	}
	return a.slots[idx], true
}

func (a *instanceArena) store(key Key, value any, cleanups []cleanupEntry) *instance {
	inst := &instance{
		key:      key,
		value:    value,
		cleanups: cleanups,
	}
	a.index[key] = len(a.slots)
	a.slots = append(a.slots, inst)
	return inst
}

func (a *instanceArena) remove(key Key) (*instance, bool) {
	idx, ok := a.index[key]
	if !ok {
		return nil, false
	}

	inst := a.slots[idx]
	a.slots = append(a.slots[:idx], a.slots[idx+1:]...)
	delete(a.index, key)
	for i := idx; i < len(a.slots); i++ {
		a.index[a.slots[i].key] = i
	}

	return inst, true
}

// drain empties the arena and advances its generation. Instances are returned
// newest first.
func (a *instanceArena) drain() []*instance {
	out := make([]*instance, 0, len(a.slots))
	for i := len(a.slots) - 1; i >= 0; i-- {
		out = append(out, a.slots[i])
	}

	a.slots = nil
	a.index = make(map[Key]int)
	a.generation++

	return out
}

func (a *instanceArena) keys() []Key {
	out := make([]Key, 0, len(a.slots))
	for _, inst := range a.slots {
		out = append(out, inst.key)
	}
	return out
}
