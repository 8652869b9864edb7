package ir

// Block is a basic block: a straight-line instruction list ending in a
// terminator.
type Block struct {
	name   string
	Instrs []*Instr
	Func   *Func
}

// Name returns the block label.
func (b *Block) Name() string { return b.name }

// Terminator returns the last instruction if it is a terminator.
func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.Op.IsTerminator() {
		return nil
	}
	return last
}

// Succs returns the successor blocks named by the terminator.
func (b *Block) Succs() []*Block {
	t := b.Terminator()
	if t == nil {
		return nil
	}
	return t.Succs
}

// Preds returns the blocks whose terminators branch to b, in function
// order. A block branching to b twice is listed twice.
func (b *Block) Preds() []*Block {
	var preds []*Block
	for _, p := range b.Func.Blocks {
		for _, s := range p.Succs() {
			if s == b {
				preds = append(preds, p)
			}
		}
	}
	return preds
}

// Phis returns the leading phi instructions of b.
func (b *Block) Phis() []*Instr {
	var phis []*Instr
	for _, in := range b.Instrs {
		if in.Op != OpPhi {
			break
		}
		phis = append(phis, in)
	}
	return phis
}

func (b *Block) index(in *Instr) int {
	for i, x := range b.Instrs {
		if x == in {
			return i
		}
	}
	return -1
}

func (b *Block) insertAt(idx int, in *Instr) {
	b.Instrs = append(b.Instrs, nil)
	copy(b.Instrs[idx+1:], b.Instrs[idx:])
	b.Instrs[idx] = in
	in.Block = b
}

// InsertBefore inserts in immediately before pos, which must be in b.
func (b *Block) InsertBefore(in, pos *Instr) {
	idx := b.index(pos)
	if idx < 0 {
		panic("ir: insertion point is not in block " + b.name)
	}
	b.insertAt(idx, in)
}

// Append adds in at the end of b.
func (b *Block) Append(in *Instr) {
	b.insertAt(len(b.Instrs), in)
}

// SplitAt moves pos and every instruction after it into a new block named
// name, placed right after b, and terminates b with an unconditional
// branch to the new block. Phis in the successors of the moved terminator
// are updated to name the new block as their predecessor.
func (b *Block) SplitAt(pos *Instr, name string) *Block {
	idx := b.index(pos)
	if idx < 0 {
		panic("ir: split point is not in block " + b.name)
	}
	f := b.Func
	nb := &Block{Func: f, name: f.unique(name)}
	f.insertBlockAfter(nb, b)

	moved := append([]*Instr(nil), b.Instrs[idx:]...)
	b.Instrs = b.Instrs[:idx]
	for _, in := range moved {
		in.Block = nb
	}
	nb.Instrs = moved

	for _, s := range nb.Succs() {
		for _, phi := range s.Phis() {
			for k, from := range phi.Incoming {
				if from == b {
					phi.Incoming[k] = nb
				}
			}
		}
	}

	br := &Instr{Op: OpBr, typ: Void, Succs: []*Block{nb}}
	b.Append(br)
	return nb
}
