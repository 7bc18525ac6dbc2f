// Package guestmod assembles minimal core wasm guests that forward calls to
// host imports.
//
// A forwarding guest imports a set of i32 functions from one host module
// and re-exports each as "g_<name>", plus one page-granular memory exported
// as "memory". The host drives the guest by writing into that memory and
// calling the exports, which lets tests and the self-test command exercise
// the device ABI through a real wazero instance without a toolchain.
package guestmod

import "encoding/binary"

const (
	sectionType     = 0x01
	sectionImport   = 0x02
	sectionFunction = 0x03
	sectionMemory   = 0x05
	sectionExport   = 0x07
	sectionCode     = 0x0a

	kindFunc   = 0x00
	kindMemory = 0x02

	typeFunc = 0x60
	typeI32  = 0x7f

	opLocalGet = 0x20
	opCall     = 0x10
	opEnd      = 0x0b
)

// ExportPrefix is prepended to each import name to form its export.
const ExportPrefix = "g_"

type function struct {
	name    string
	params  int
	results int
}

// Builder builds a forwarding guest.
type Builder struct {
	module string
	funcs  []function
	pages  uint32
}

// New creates a builder whose imports come from module.
func New(module string) *Builder {
	return &Builder{module: module, pages: 1}
}

// Import adds an imported function with params i32 parameters and results
// i32 results.
func (b *Builder) Import(name string, params, results int) *Builder {
	b.funcs = append(b.funcs, function{name: name, params: params, results: results})
	return b
}

// Memory sets the initial memory size in 64 KiB pages.
func (b *Builder) Memory(pages uint32) *Builder {
	b.pages = pages
	return b
}

// Build generates the module bytes.
func (b *Builder) Build() []byte {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(b.funcs) > 0 {
		wasm = appendSection(wasm, sectionType, b.typeSection())
		wasm = appendSection(wasm, sectionImport, b.importSection())
		wasm = appendSection(wasm, sectionFunction, b.funcSection())
	}
	wasm = appendSection(wasm, sectionMemory, b.memorySection())
	wasm = appendSection(wasm, sectionExport, b.exportSection())
	if len(b.funcs) > 0 {
		wasm = appendSection(wasm, sectionCode, b.codeSection())
	}
	return wasm
}

func (b *Builder) typeSection() []byte {
	s := uleb(nil, len(b.funcs))
	for _, f := range b.funcs {
		s = append(s, typeFunc)
		s = uleb(s, f.params)
		for i := 0; i < f.params; i++ {
			s = append(s, typeI32)
		}
		s = uleb(s, f.results)
		for i := 0; i < f.results; i++ {
			s = append(s, typeI32)
		}
	}
	return s
}

func (b *Builder) importSection() []byte {
	s := uleb(nil, len(b.funcs))
	for i, f := range b.funcs {
		s = appendName(s, b.module)
		s = appendName(s, f.name)
		s = append(s, kindFunc)
		s = uleb(s, i)
	}
	return s
}

// Each local function reuses the type of the import it forwards to.
func (b *Builder) funcSection() []byte {
	s := uleb(nil, len(b.funcs))
	for i := range b.funcs {
		s = uleb(s, i)
	}
	return s
}

func (b *Builder) memorySection() []byte {
	s := uleb(nil, 1)
	s = append(s, 0x00)
	return binary.AppendUvarint(s, uint64(b.pages))
}

func (b *Builder) exportSection() []byte {
	s := uleb(nil, len(b.funcs)+1)
	s = appendName(s, "memory")
	s = append(s, kindMemory, 0x00)

	// Imported functions occupy indices [0, n); forwarders follow.
	for i, f := range b.funcs {
		s = appendName(s, ExportPrefix+f.name)
		s = append(s, kindFunc)
		s = uleb(s, len(b.funcs)+i)
	}
	return s
}

func (b *Builder) codeSection() []byte {
	s := uleb(nil, len(b.funcs))
	for i, f := range b.funcs {
		body := []byte{0x00} // no locals
		for p := 0; p < f.params; p++ {
			body = append(body, opLocalGet)
			body = uleb(body, p)
		}
		body = append(body, opCall)
		body = uleb(body, i)
		body = append(body, opEnd)

		s = uleb(s, len(body))
		s = append(s, body...)
	}
	return s
}

func appendSection(dst []byte, id byte, payload []byte) []byte {
	dst = append(dst, id)
	dst = uleb(dst, len(payload))
	return append(dst, payload...)
}

func appendName(dst []byte, name string) []byte {
	dst = uleb(dst, len(name))
	return append(dst, name...)
}

// uleb appends v in unsigned LEB128, which is the uvarint encoding.
func uleb(dst []byte, v int) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}
