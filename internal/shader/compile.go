package shader

import (
	"fmt"
	"time"

	"github.com/gogpu/naga"
	"go.uber.org/zap"

	"github.com/Faultbox/relief-shade/internal/logger"
	"github.com/Faultbox/relief-shade/pkg/layout"
	"github.com/Faultbox/relief-shade/pkg/shadowcodec"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Compile translates WGSL source to SPIR-V words.
func Compile(wgsl string) ([]uint32, error) {
	start := time.Now()
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 || len(spirvBytes) < 4 {
		return nil, fmt.Errorf("failed to compile shader: %d bytes of SPIR-V", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	if code[0] != spirvMagic {
		return nil, fmt.Errorf("failed to compile shader: bad SPIR-V magic 0x%08X", code[0])
	}

	logger.Named("shader").Debug("shader compiled",
		zap.Int("wgsl_bytes", len(wgsl)),
		zap.Int("spirv_words", len(code)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return code, nil
}

// Program is a generated module together with its compiled form.
type Program struct {
	*Source
	SPIRV []uint32
}

// Build generates and compiles the module for plan.
func Build(plan *layout.Plan, factor float64, scheme shadowcodec.Scheme) (*Program, error) {
	src, err := Generate(plan, factor, scheme)
	if err != nil {
		return nil, err
	}
	code, err := Compile(src.WGSL)
	if err != nil {
		return nil, err
	}
	return &Program{Source: src, SPIRV: code}, nil
}
