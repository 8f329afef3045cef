package logic

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/byrizki/jsoneval/pkg/ordered"
)

// store is the process-wide content-addressed registry of compiled
// expressions. Ids are monotonic for the process lifetime and entries are
// never evicted, so an id handed out once stays valid.
type store struct {
	mu     sync.RWMutex
	byHash map[uint64]ID
	byID   map[ID]*Compiled
	nextID uint64
}

var globalStore = &store{
	byHash: make(map[uint64]ID),
	byID:   make(map[ID]*Compiled),
	nextID: 1, // 0 reserved for invalid
}

// Compile compiles a raw expression value (as produced by ordered.Decode)
// and returns its id. Identical expressions under canonical serialization
// share one id across all schemas in the process.
func Compile(v any) (ID, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLogicSerialize, err)
	}
	hash := xxhash.Sum64(raw)

	globalStore.mu.RLock()
	id, ok := globalStore.byHash[hash]
	globalStore.mu.RUnlock()
	if ok {
		return id, nil
	}

	// Compile outside the lock; concurrent compiles of the same value are
	// reconciled below.
	node, err := compileNode(v)
	if err != nil {
		return 0, err
	}

	globalStore.mu.Lock()
	defer globalStore.mu.Unlock()
	if id, ok := globalStore.byHash[hash]; ok {
		return id, nil
	}
	id = ID(globalStore.nextID)
	globalStore.nextID++
	globalStore.byHash[hash] = id
	globalStore.byID[id] = node
	return id, nil
}

// CompileJSON parses an expression from JSON text and compiles it.
func CompileJSON(src string) (ID, error) {
	v, err := ordered.Decode([]byte(src))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLogicSerialize, err)
	}
	return Compile(v)
}

// Lookup returns the compiled node for an id.
func Lookup(id ID) (*Compiled, bool) {
	globalStore.mu.RLock()
	defer globalStore.mu.RUnlock()
	node, ok := globalStore.byID[id]
	return node, ok
}

// StoreStats reports the number of stored expressions and the next id to
// be allocated.
func StoreStats() (count int, nextID uint64) {
	globalStore.mu.RLock()
	defer globalStore.mu.RUnlock()
	return len(globalStore.byID), globalStore.nextID
}

// Dependencies returns the data paths a compiled expression reads: every
// Var path plus every Ref path, in first-seen order. Paths read inside
// element-scoped lambda bodies (map, filter, reduce, quantifiers, findindex
// conditions) are excluded because they resolve against the element, not
// the outer data object.
func Dependencies(id ID) []string {
	node, ok := Lookup(id)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	collectDeps(node, false, seen, &out)
	return out
}

func collectDeps(c *Compiled, elementScope bool, seen map[string]struct{}, out *[]string) {
	if c == nil {
		return
	}
	switch c.Op {
	case OpVar:
		if !elementScope && c.Path != "" {
			addDep(c.Path, seen, out)
		}
		collectDeps(c.Default, elementScope, seen, out)
		return
	case OpRef:
		if c.Path != "" {
			addDep(c.Path, seen, out)
		}
		collectDeps(c.Default, elementScope, seen, out)
		return
	case OpMap, OpFilter, OpAll, OpSome, OpNone:
		collectDeps(c.Args[0], elementScope, seen, out)
		collectDeps(c.Args[1], true, seen, out)
		return
	case OpReduce:
		collectDeps(c.Args[0], elementScope, seen, out)
		collectDeps(c.Args[1], true, seen, out)
		if len(c.Args) > 2 {
			collectDeps(c.Args[2], elementScope, seen, out)
		}
		return
	case OpFindIndex:
		collectDeps(c.Args[0], elementScope, seen, out)
		for _, cond := range c.Args[1:] {
			collectDeps(cond, true, seen, out)
		}
		return
	}
	for _, arg := range c.Args {
		collectDeps(arg, elementScope, seen, out)
	}
}

func addDep(path string, seen map[string]struct{}, out *[]string) {
	if _, ok := seen[path]; ok {
		return
	}
	seen[path] = struct{}{}
	*out = append(*out, path)
}
