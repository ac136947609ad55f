package pipeline

import (
	"errors"
	"testing"

	"github.com/gogpu/particlelife/gpucore"
)

const workgroupSrc = `
const TILE: u32 = 8u;

@compute @workgroup_size(64)
fn one_d(@builtin(global_invocation_id) id: vec3<u32>) {
}

@compute @workgroup_size(16, 16, 1)
fn two_d(@builtin(global_invocation_id) id: vec3<u32>) {
}

@compute @workgroup_size(TILE, TILE)
fn named(@builtin(global_invocation_id) id: vec3<u32>) {
}

@compute @workgroup_size(32u, 2i,)
fn suffixed() {
}

@compute @workgroup_size(LANES)
fn from_define() {
}

fn helper() -> u32 {
    return 1u;
}
`

func TestWorkgroupSize(t *testing.T) {
	tests := []struct {
		entry string
		want  [3]uint32
	}{
		{"one_d", [3]uint32{64, 1, 1}},
		{"two_d", [3]uint32{16, 16, 1}},
		{"named", [3]uint32{8, 8, 1}},
		{"suffixed", [3]uint32{32, 2, 1}},
		{"from_define", [3]uint32{4, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := WorkgroupSize(workgroupSrc, tt.entry, Defines{"LANES": 4})
			if err != nil {
				t.Fatalf("WorkgroupSize: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorkgroupSize_Errors(t *testing.T) {
	tests := []struct {
		entry   string
		wantErr error
	}{
		{"missing", ErrEntryPointNotFound},
		{"helper", ErrEntryPointNotFound},
		{"from_define", ErrWorkgroupMismatch}, // LANES unresolved
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			if _, err := WorkgroupSize(workgroupSrc, tt.entry, nil); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWorkgroupSize(t *testing.T) {
	if err := ValidateWorkgroupSize(workgroupSrc, "two_d", nil, [3]uint32{16, 16, 1}); err != nil {
		t.Errorf("matching size: %v", err)
	}
	err := ValidateWorkgroupSize(workgroupSrc, "one_d", nil, [3]uint32{16, 1, 1})
	if !errors.Is(err, ErrWorkgroupMismatch) {
		t.Errorf("err = %v, want ErrWorkgroupMismatch", err)
	}
}

func TestCheckLimits(t *testing.T) {
	caps := gpucore.DefaultCapabilities()
	tests := []struct {
		name string
		size [3]uint32
		ok   bool
	}{
		{"16x16", [3]uint32{16, 16, 1}, true},
		{"256x1", [3]uint32{256, 1, 1}, true},
		{"zero", [3]uint32{0, 1, 1}, false},
		{"x too wide", [3]uint32{512, 1, 1}, false},
		{"too many invocations", [3]uint32{32, 32, 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkLimits(tt.size, caps)
			if tt.ok != (err == nil) {
				t.Errorf("err = %v, ok = %v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrWorkgroupLimit) {
				t.Errorf("err = %v, want ErrWorkgroupLimit", err)
			}
		})
	}
}

func TestEmbeddedKernelsDeclareExpectedSizes(t *testing.T) {
	params := KernelParams{WorkgroupSize: 16, Width: 800, Height: 600}
	defines := params.Defines()

	update, err := Preprocess(UpdateShaderSource(), defines)
	if err != nil {
		t.Fatalf("Preprocess update: %v", err)
	}
	render, err := Preprocess(RenderShaderSource(), defines)
	if err != nil {
		t.Fatalf("Preprocess render: %v", err)
	}

	tests := []struct {
		src, entry string
		want       [3]uint32
	}{
		{update, EntrySpatialHashGrid, [3]uint32{16, 1, 1}},
		{update, EntryVelocities, [3]uint32{16, 1, 1}},
		{update, EntryPositions, [3]uint32{16, 1, 1}},
		{render, EntryClear, [3]uint32{16, 16, 1}},
		{render, EntryRender, [3]uint32{16, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			if err := ValidateWorkgroupSize(tt.src, tt.entry, defines, tt.want); err != nil {
				t.Error(err)
			}
		})
	}
}
