package guestmod

// header is the magic "\0asm" followed by binary format version 1.
var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02

	i32      = 0x7f
	funcType = 0x60
)

// FuncType is a signature over i32 values, the only type guests here use.
type FuncType struct {
	Params  int
	Results int
}

// Import is an imported function.
type Import struct {
	Module string
	Name   string
	Type   uint32
}

// Export is an exported function or memory.
type Export struct {
	Name   string
	Memory bool
	Index  uint32
}

// Func is a defined function: its type, extra i32 locals and body.
type Func struct {
	Type   uint32
	Locals int
	Body   *Asm
}

// Data is an active data segment of memory 0.
type Data struct {
	Offset int32
	Init   []byte
}

// Module is a core module restricted to what guest fixtures need: i32
// signatures, mutable i32 globals and one memory.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []Func
	Pages   uint32 // 0 means no memory
	Globals []int32
	Exports []Export
	Data    []Data
}

// Encode renders m in the WebAssembly binary format.
func (m *Module) Encode() []byte {
	var w writer
	w.write(header)

	if len(m.Types) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Types)))
		for _, t := range m.Types {
			sec.byte(funcType)
			sec.u32(uint32(t.Params))
			for i := 0; i < t.Params; i++ {
				sec.byte(i32)
			}
			sec.u32(uint32(t.Results))
			for i := 0; i < t.Results; i++ {
				sec.byte(i32)
			}
		}
		w.section(sectionType, &sec)
	}

	if len(m.Imports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.name(imp.Module)
			sec.name(imp.Name)
			sec.byte(kindFunc)
			sec.u32(imp.Type)
		}
		w.section(sectionImport, &sec)
	}

	if len(m.Funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec.u32(f.Type)
		}
		w.section(sectionFunction, &sec)
	}

	if m.Pages > 0 {
		var sec writer
		sec.u32(1)
		sec.byte(0x00) // min only
		sec.u32(m.Pages)
		w.section(sectionMemory, &sec)
	}

	if len(m.Globals) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Globals)))
		for _, init := range m.Globals {
			sec.byte(i32)
			sec.byte(0x01) // mutable
			sec.write(NewAsm().I32Const(init).End().Bytes())
		}
		w.section(sectionGlobal, &sec)
	}

	if len(m.Exports) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.name(exp.Name)
			if exp.Memory {
				sec.byte(kindMemory)
			} else {
				sec.byte(kindFunc)
			}
			sec.u32(exp.Index)
		}
		w.section(sectionExport, &sec)
	}

	if len(m.Funcs) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			var body writer
			if f.Locals > 0 {
				body.u32(1)
				body.u32(uint32(f.Locals))
				body.byte(i32)
			} else {
				body.u32(0)
			}
			body.write(f.Body.Bytes())
			sec.u32(uint32(body.buf.Len()))
			sec.write(body.bytes())
		}
		w.section(sectionCode, &sec)
	}

	if len(m.Data) > 0 {
		var sec writer
		sec.u32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.u32(0) // active, memory 0
			sec.write(NewAsm().I32Const(d.Offset).End().Bytes())
			sec.u32(uint32(len(d.Init)))
			sec.write(d.Init)
		}
		w.section(sectionData, &sec)
	}

	return w.bytes()
}
