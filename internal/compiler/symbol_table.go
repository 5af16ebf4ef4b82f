package compiler

type SymbolScope string

const (
	GlobalScope SymbolScope = "GLOBAL"
	LocalScope  SymbolScope = "LOCAL"
	FreeScope   SymbolScope = "FREE"
)

type Symbol struct {
	Name    string
	Index   int
	Mutable bool
}

// Resolution is the outcome of resolving a name from some scope. FreeIndex
// is meaningful only for FreeScope.
type Resolution struct {
	Symbol    *Symbol
	Scope     SymbolScope
	FreeIndex int
}

// SymbolTable assigns slot indexes statically. Block tables share their
// function's slot counter; function tables start a fresh one. A name
// resolved across a function boundary becomes a free variable of every
// function between its use and its declaration, which is what lets the VM
// chain cells through nested closures.
type SymbolTable struct {
	outer   *SymbolTable
	block   bool // shares the enclosing function's numbering
	global  bool
	symbols map[string]*Symbol
	count   *int
	free    []*Resolution // populated on function root tables only
}

func NewSymbolTable() *SymbolTable {
	count := 0
	return &SymbolTable{
		global:  true,
		symbols: make(map[string]*Symbol),
		count:   &count,
	}
}

func (t *SymbolTable) NewBlock() *SymbolTable {
	return &SymbolTable{
		outer:   t,
		block:   true,
		global:  t.global,
		symbols: make(map[string]*Symbol),
		count:   t.count,
	}
}

func (t *SymbolTable) NewFunction() *SymbolTable {
	count := 0
	return &SymbolTable{
		outer:   t,
		symbols: make(map[string]*Symbol),
		count:   &count,
	}
}

// Define allocates a slot for name in this table. The second result is
// false when the name already exists here as an immutable binding; callers
// turn that into the same runtime error the evaluator raises.
func (t *SymbolTable) Define(name string, mutable bool) (*Symbol, bool) {
	if existing, exists := t.symbols[name]; exists {
		if !existing.Mutable {
			return nil, false
		}
		// Redefinition in the same scope reuses the slot.
		existing.Mutable = mutable
		return existing, true
	}
	sym := &Symbol{Name: name, Index: *t.count, Mutable: mutable}
	*t.count++
	t.symbols[name] = sym
	return sym, true
}

// Local reports a symbol declared directly in this table.
func (t *SymbolTable) Local(name string) (*Symbol, bool) {
	sym, ok := t.symbols[name]
	return sym, ok
}

func (t *SymbolTable) NumDefinitions() int { return *t.count }

// functionRoot walks up the block chain to the owning function table.
func (t *SymbolTable) functionRoot() *SymbolTable {
	cur := t
	for cur.block {
		cur = cur.outer
	}
	return cur
}

// FreeList returns the captured-variable resolutions of this function, in
// capture order. Each entry is expressed relative to the enclosing
// function, which is exactly what closure assembly needs.
func (t *SymbolTable) FreeList() []*Resolution {
	return t.functionRoot().free
}

func (t *SymbolTable) addFree(res *Resolution) int {
	for i, fr := range t.free {
		if fr.Symbol == res.Symbol {
			return i
		}
	}
	t.free = append(t.free, res)
	return len(t.free) - 1
}

// Resolve finds name starting at this scope. Globals resolve directly from
// any depth; anything else crossing a function boundary is recorded as a
// free variable.
func (t *SymbolTable) Resolve(name string) (*Resolution, bool) {
	cur := t
	for {
		if sym, ok := cur.symbols[name]; ok {
			scope := LocalScope
			if cur.global {
				scope = GlobalScope
			}
			return &Resolution{Symbol: sym, Scope: scope}, true
		}
		if !cur.block {
			break
		}
		cur = cur.outer
	}
	if cur.outer == nil {
		return nil, false
	}
	res, ok := cur.outer.Resolve(name)
	if !ok {
		return nil, false
	}
	if res.Scope == GlobalScope {
		return res, true
	}
	idx := cur.addFree(res)
	return &Resolution{Symbol: res.Symbol, Scope: FreeScope, FreeIndex: idx}, true
}
