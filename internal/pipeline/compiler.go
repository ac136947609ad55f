package pipeline

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
)

// Compiler turns preprocessed WGSL into SPIR-V words.
type Compiler interface {
	Compile(wgsl string) ([]uint32, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(wgsl string) ([]uint32, error)

// Compile calls f.
func (f CompilerFunc) Compile(wgsl string) ([]uint32, error) { return f(wgsl) }

// NagaCompiler compiles WGSL with the pure-Go naga compiler.
type NagaCompiler struct{}

// Compile implements Compiler.
func (NagaCompiler) Compile(wgsl string) ([]uint32, error) {
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}
	return spirvWords(spirv)
}

// spirvWords reinterprets little-endian SPIR-V bytes as 32-bit words.
func spirvWords(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("spir-v length %d is not a positive multiple of 4", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words, nil
}
