package guestmod

// Asm emits a function body one instruction at a time.
type Asm struct {
	w writer
}

// NewAsm starts an empty body.
func NewAsm() *Asm { return &Asm{} }

// Bytes returns the encoded instructions.
func (a *Asm) Bytes() []byte { return a.w.bytes() }

func (a *Asm) op(b byte) *Asm {
	a.w.byte(b)
	return a
}

func (a *Asm) Unreachable() *Asm { return a.op(0x00) }
func (a *Asm) End() *Asm         { return a.op(0x0b) }
func (a *Asm) Else() *Asm        { return a.op(0x05) }
func (a *Asm) Return() *Asm      { return a.op(0x0f) }
func (a *Asm) Drop() *Asm        { return a.op(0x1a) }
func (a *Asm) I32Eqz() *Asm      { return a.op(0x45) }
func (a *Asm) I32Ne() *Asm       { return a.op(0x47) }
func (a *Asm) I32Add() *Asm      { return a.op(0x6a) }
func (a *Asm) I32And() *Asm      { return a.op(0x71) }

// If opens a block with no result.
func (a *Asm) If() *Asm { return a.op(0x04).op(0x40) }

// Loop opens a loop with no result.
func (a *Asm) Loop() *Asm { return a.op(0x03).op(0x40) }

// Br branches to the enclosing block at depth.
func (a *Asm) Br(depth uint32) *Asm {
	a.op(0x0c)
	a.w.u32(depth)
	return a
}

func (a *Asm) Call(fn uint32) *Asm {
	a.op(0x10)
	a.w.u32(fn)
	return a
}

func (a *Asm) LocalGet(i uint32) *Asm {
	a.op(0x20)
	a.w.u32(i)
	return a
}

func (a *Asm) LocalTee(i uint32) *Asm {
	a.op(0x22)
	a.w.u32(i)
	return a
}

func (a *Asm) GlobalGet(i uint32) *Asm {
	a.op(0x23)
	a.w.u32(i)
	return a
}

func (a *Asm) GlobalSet(i uint32) *Asm {
	a.op(0x24)
	a.w.u32(i)
	return a
}

func (a *Asm) I32Const(v int32) *Asm {
	a.op(0x41)
	a.w.s32(v)
	return a
}

// I32Load loads from the address on the stack, 4-byte aligned.
func (a *Asm) I32Load() *Asm {
	a.op(0x28)
	a.w.u32(2)
	a.w.u32(0)
	return a
}

// I32Store stores the value on the stack at the address below it.
func (a *Asm) I32Store() *Asm {
	a.op(0x36)
	a.w.u32(2)
	a.w.u32(0)
	return a
}

// StoreConst writes value at the constant address addr.
func (a *Asm) StoreConst(addr, value int32) *Asm {
	return a.I32Const(addr).I32Const(value).I32Store()
}

// StoreGlobal writes global g at the constant address addr.
func (a *Asm) StoreGlobal(addr int32, g uint32) *Asm {
	return a.I32Const(addr).GlobalGet(g).I32Store()
}
