package gpucore

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// CommandKind identifies a recorded compute command.
type CommandKind uint8

const (
	CmdBeginPass    CommandKind = iota // Begin a compute pass
	CmdSetPipeline                     // Bind a compute pipeline
	CmdSetBindGroup                    // Bind a bind group
	CmdDispatch                        // Dispatch workgroups
	CmdEndPass                         // End the compute pass
)

var commandKindNames = [...]string{
	CmdBeginPass:    "BeginPass",
	CmdSetPipeline:  "SetPipeline",
	CmdSetBindGroup: "SetBindGroup",
	CmdDispatch:     "Dispatch",
	CmdEndPass:      "EndPass",
}

// String returns the command name.
func (k CommandKind) String() string {
	if int(k) < len(commandKindNames) {
		return commandKindNames[k]
	}
	return fmt.Sprintf("CommandKind(%d)", k)
}

// Command is one recorded compute command.
type Command struct {
	Kind      CommandKind
	Label     string
	Pipeline  ComputePipelineID
	Index     uint32
	BindGroup BindGroupID
	X, Y, Z   uint32
}

// Dispatch is a dispatch together with the state bound when it was issued.
type Dispatch struct {
	Pipeline  ComputePipelineID
	BindGroup BindGroupID
	X, Y, Z   uint32
}

// Pass is a compute pass reconstructed from a submission.
type Pass struct {
	Label      string
	Dispatches []Dispatch
}

// Submission is the command stream of one submitted encoder.
type Submission struct {
	Label    string
	Commands []Command
}

// Passes groups the submission's commands into compute passes.
func (s Submission) Passes() []Pass {
	var (
		passes    []Pass
		cur       *Pass
		pipeline  ComputePipelineID
		bindGroup BindGroupID
	)
	for _, c := range s.Commands {
		switch c.Kind {
		case CmdBeginPass:
			passes = append(passes, Pass{Label: c.Label})
			cur = &passes[len(passes)-1]
			pipeline, bindGroup = InvalidID, InvalidID
		case CmdSetPipeline:
			pipeline = c.Pipeline
		case CmdSetBindGroup:
			if c.Index == 0 {
				bindGroup = c.BindGroup
			}
		case CmdDispatch:
			if cur != nil {
				cur.Dispatches = append(cur.Dispatches, Dispatch{
					Pipeline: pipeline, BindGroup: bindGroup, X: c.X, Y: c.Y, Z: c.Z,
				})
			}
		case CmdEndPass:
			cur = nil
		}
	}
	return passes
}

type recordedBuffer struct {
	desc BufferDesc
	data []byte
}

// RecordingAdapter is an in-memory GPUAdapter. It validates descriptors the
// way a real device would, keeps buffer contents on the host, and records
// every submitted command so callers can inspect pass ordering and
// workgroup counts without a GPU.
//
// Thread safety: RecordingAdapter is safe for concurrent use.
type RecordingAdapter struct {
	mu     sync.Mutex
	nextID atomic.Uint64
	caps   AdapterCapabilities

	modules          map[ShaderModuleID]string
	buffers          map[BufferID]*recordedBuffer
	textures         map[TextureID]TextureDesc
	bindGroupLayouts map[BindGroupLayoutID]BindGroupLayoutDesc
	pipelineLayouts  map[PipelineLayoutID][]BindGroupLayoutID
	pipelines        map[ComputePipelineID]ComputePipelineDesc
	bindGroups       map[BindGroupID]BindGroupDesc

	submissions  []Submission
	failPipeline func(desc *ComputePipelineDesc) error
}

// NewRecordingAdapter creates an empty recording adapter with default
// capabilities.
func NewRecordingAdapter() *RecordingAdapter {
	a := &RecordingAdapter{
		caps:             DefaultCapabilities(),
		modules:          make(map[ShaderModuleID]string),
		buffers:          make(map[BufferID]*recordedBuffer),
		textures:         make(map[TextureID]TextureDesc),
		bindGroupLayouts: make(map[BindGroupLayoutID]BindGroupLayoutDesc),
		pipelineLayouts:  make(map[PipelineLayoutID][]BindGroupLayoutID),
		pipelines:        make(map[ComputePipelineID]ComputePipelineDesc),
		bindGroups:       make(map[BindGroupID]BindGroupDesc),
	}
	a.nextID.Store(1)
	return a
}

func (a *RecordingAdapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// FailComputePipeline installs a hook consulted by CreateComputePipeline.
// A non-nil error from the hook fails pipeline creation.
func (a *RecordingAdapter) FailComputePipeline(fn func(desc *ComputePipelineDesc) error) {
	a.mu.Lock()
	a.failPipeline = fn
	a.mu.Unlock()
}

// SetCapabilities replaces the limits the adapter validates against.
func (a *RecordingAdapter) SetCapabilities(caps AdapterCapabilities) {
	a.mu.Lock()
	a.caps = caps
	a.mu.Unlock()
}

// Capabilities returns the adapter's compute limits.
func (a *RecordingAdapter) Capabilities() AdapterCapabilities {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.caps
}

// CreateShaderModule records a shader module.
func (a *RecordingAdapter) CreateShaderModule(spirv []uint32, label string) (ShaderModuleID, error) {
	if len(spirv) == 0 {
		return InvalidID, fmt.Errorf("%w: empty SPIR-V for %q", ErrInvalidDescriptor, label)
	}
	id := ShaderModuleID(a.newID())
	a.mu.Lock()
	a.modules[id] = label
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *RecordingAdapter) DestroyShaderModule(id ShaderModuleID) {
	a.mu.Lock()
	delete(a.modules, id)
	a.mu.Unlock()
}

// CreateBuffer allocates a host-side buffer.
func (a *RecordingAdapter) CreateBuffer(desc *BufferDesc) (BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return InvalidID, fmt.Errorf("%w: buffer size must be positive", ErrInvalidDescriptor)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if desc.Size > a.caps.MaxBufferSize {
		return InvalidID, fmt.Errorf("%w: buffer %q size %d exceeds limit %d",
			ErrInvalidDescriptor, desc.Label, desc.Size, a.caps.MaxBufferSize)
	}
	id := BufferID(a.newID())
	a.buffers[id] = &recordedBuffer{desc: *desc, data: make([]byte, desc.Size)}
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *RecordingAdapter) DestroyBuffer(id BufferID) {
	a.mu.Lock()
	delete(a.buffers, id)
	a.mu.Unlock()
}

// WriteBuffer copies data into the buffer at offset.
func (a *RecordingAdapter) WriteBuffer(id BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return fmt.Errorf("%w: write of %d bytes at %d overflows buffer %q (%d bytes)",
			ErrInvalidDescriptor, len(data), offset, buf.desc.Label, len(buf.data))
	}
	copy(buf.data[offset:], data)
	return nil
}

// CreateTexture records a texture.
func (a *RecordingAdapter) CreateTexture(desc *TextureDesc) (TextureID, error) {
	if desc == nil || desc.Width == 0 || desc.Height == 0 {
		return InvalidID, fmt.Errorf("%w: texture dimensions must be positive", ErrInvalidDescriptor)
	}
	id := TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = *desc
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a texture.
func (a *RecordingAdapter) DestroyTexture(id TextureID) {
	a.mu.Lock()
	delete(a.textures, id)
	a.mu.Unlock()
}

// CreateBindGroupLayout records a bind group layout.
func (a *RecordingAdapter) CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error) {
	if desc == nil {
		return InvalidID, fmt.Errorf("%w: nil bind group layout descriptor", ErrInvalidDescriptor)
	}
	seen := make(map[uint32]bool, len(desc.Entries))
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return InvalidID, fmt.Errorf("%w: duplicate binding %d in layout %q", ErrInvalidDescriptor, e.Binding, desc.Label)
		}
		seen[e.Binding] = true
	}
	id := BindGroupLayoutID(a.newID())
	cp := *desc
	cp.Entries = append([]BindGroupLayoutEntry(nil), desc.Entries...)
	a.mu.Lock()
	a.bindGroupLayouts[id] = cp
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *RecordingAdapter) DestroyBindGroupLayout(id BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout records a pipeline layout.
func (a *RecordingAdapter) CreatePipelineLayout(label string, layouts []BindGroupLayoutID) (PipelineLayoutID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, l := range layouts {
		if _, ok := a.bindGroupLayouts[l]; !ok {
			return InvalidID, fmt.Errorf("%w: bind group layout %d for %q", ErrUnknownResource, l, label)
		}
	}
	id := PipelineLayoutID(a.newID())
	a.pipelineLayouts[id] = append([]BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *RecordingAdapter) DestroyPipelineLayout(id PipelineLayoutID) {
	a.mu.Lock()
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline records a compute pipeline.
func (a *RecordingAdapter) CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error) {
	if desc == nil {
		return InvalidID, fmt.Errorf("%w: nil compute pipeline descriptor", ErrInvalidDescriptor)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pipelineLayouts[desc.Layout]; !ok {
		return InvalidID, fmt.Errorf("%w: pipeline layout %d", ErrUnknownResource, desc.Layout)
	}
	if _, ok := a.modules[desc.ShaderModule]; !ok {
		return InvalidID, fmt.Errorf("%w: shader module %d", ErrUnknownResource, desc.ShaderModule)
	}
	if a.failPipeline != nil {
		if err := a.failPipeline(desc); err != nil {
			return InvalidID, err
		}
	}
	id := ComputePipelineID(a.newID())
	a.pipelines[id] = *desc
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *RecordingAdapter) DestroyComputePipeline(id ComputePipelineID) {
	a.mu.Lock()
	delete(a.pipelines, id)
	a.mu.Unlock()
}

// CreateBindGroup records a bind group after checking every entry against
// the layout: each layout binding must be supplied exactly once, buffers
// for buffer bindings and textures for texture bindings.
func (a *RecordingAdapter) CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error) {
	if desc == nil {
		return InvalidID, fmt.Errorf("%w: nil bind group descriptor", ErrInvalidDescriptor)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	layout, ok := a.bindGroupLayouts[desc.Layout]
	if !ok {
		return InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, desc.Layout)
	}
	if len(desc.Entries) != len(layout.Entries) {
		return InvalidID, fmt.Errorf("%w: bind group %q has %d entries, layout %q expects %d",
			ErrInvalidDescriptor, desc.Label, len(desc.Entries), layout.Label, len(layout.Entries))
	}
	byBinding := make(map[uint32]BindGroupLayoutEntry, len(layout.Entries))
	for _, le := range layout.Entries {
		byBinding[le.Binding] = le
	}
	for _, e := range desc.Entries {
		le, ok := byBinding[e.Binding]
		if !ok {
			return InvalidID, fmt.Errorf("%w: binding %d not in layout %q", ErrInvalidDescriptor, e.Binding, layout.Label)
		}
		if le.Type.IsBuffer() {
			buf, ok := a.buffers[e.Buffer]
			if !ok {
				return InvalidID, fmt.Errorf("%w: buffer %d at binding %d", ErrUnknownResource, e.Buffer, e.Binding)
			}
			if e.Offset+e.Size > buf.desc.Size {
				return InvalidID, fmt.Errorf("%w: binding %d range exceeds buffer %q", ErrInvalidDescriptor, e.Binding, buf.desc.Label)
			}
			bound := e.Size
			if bound == 0 {
				bound = buf.desc.Size - e.Offset
			}
			if bound < le.MinBindingSize {
				return InvalidID, fmt.Errorf("%w: binding %d binds %d bytes, layout requires %d",
					ErrInvalidDescriptor, e.Binding, bound, le.MinBindingSize)
			}
			continue
		}
		if _, ok := a.textures[e.Texture]; !ok {
			return InvalidID, fmt.Errorf("%w: texture %d at binding %d", ErrUnknownResource, e.Texture, e.Binding)
		}
	}

	id := BindGroupID(a.newID())
	cp := *desc
	cp.Entries = append([]BindGroupEntry(nil), desc.Entries...)
	a.bindGroups[id] = cp
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *RecordingAdapter) DestroyBindGroup(id BindGroupID) {
	a.mu.Lock()
	delete(a.bindGroups, id)
	a.mu.Unlock()
}

// BeginEncoding starts a recording encoder.
func (a *RecordingAdapter) BeginEncoding(label string) (CommandEncoder, error) {
	return &recordingEncoder{adapter: a, label: label}, nil
}

// Submit appends the encoder's commands to the submission log.
func (a *RecordingAdapter) Submit(encoder CommandEncoder) error {
	enc, ok := encoder.(*recordingEncoder)
	if !ok || enc.adapter != a {
		return ErrForeignEncoder
	}
	if enc.finished {
		return ErrEncoderFinished
	}
	enc.finished = true
	a.mu.Lock()
	a.submissions = append(a.submissions, Submission{Label: enc.label, Commands: enc.commands})
	a.mu.Unlock()
	return nil
}

// WaitIdle returns immediately; recorded work completes on submit.
func (a *RecordingAdapter) WaitIdle() error { return nil }

// Submissions returns a copy of all submissions so far.
func (a *RecordingAdapter) Submissions() []Submission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Submission(nil), a.submissions...)
}

// LastSubmission returns the most recent submission.
func (a *RecordingAdapter) LastSubmission() (Submission, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.submissions) == 0 {
		return Submission{}, false
	}
	return a.submissions[len(a.submissions)-1], true
}

// Buffer returns the descriptor of a live buffer.
func (a *RecordingAdapter) Buffer(id BufferID) (BufferDesc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if !ok {
		return BufferDesc{}, false
	}
	return buf.desc, true
}

// BufferData returns a copy of a live buffer's contents.
func (a *RecordingAdapter) BufferData(id BufferID) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), buf.data...)
}

// BindGroup returns the descriptor of a live bind group.
func (a *RecordingAdapter) BindGroup(id BindGroupID) (BindGroupDesc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bg, ok := a.bindGroups[id]
	return bg, ok
}

// ComputePipeline returns the descriptor of a live compute pipeline.
func (a *RecordingAdapter) ComputePipeline(id ComputePipelineID) (ComputePipelineDesc, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pipelines[id]
	return p, ok
}

// LiveBuffers returns the number of buffers not yet destroyed.
func (a *RecordingAdapter) LiveBuffers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}

// LiveBindGroups returns the number of bind groups not yet destroyed.
func (a *RecordingAdapter) LiveBindGroups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.bindGroups)
}

// LivePipelines returns the number of compute pipelines not yet destroyed.
func (a *RecordingAdapter) LivePipelines() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pipelines)
}

// recordingEncoder implements CommandEncoder for RecordingAdapter.
// An encoder is used by one goroutine at a time.
type recordingEncoder struct {
	adapter  *RecordingAdapter
	label    string
	commands []Command
	passOpen bool
	finished bool
}

func (e *recordingEncoder) BeginComputePass(label string) ComputePassEncoder {
	e.commands = append(e.commands, Command{Kind: CmdBeginPass, Label: label})
	e.passOpen = true
	return &recordingPass{enc: e}
}

func (e *recordingEncoder) Discard() {
	e.finished = true
	e.commands = nil
}

type recordingPass struct {
	enc   *recordingEncoder
	ended bool
}

func (p *recordingPass) record(c Command) {
	if p.ended {
		return
	}
	p.enc.commands = append(p.enc.commands, c)
}

func (p *recordingPass) SetPipeline(pipeline ComputePipelineID) {
	p.record(Command{Kind: CmdSetPipeline, Pipeline: pipeline})
}

func (p *recordingPass) SetBindGroup(index uint32, group BindGroupID) {
	p.record(Command{Kind: CmdSetBindGroup, Index: index, BindGroup: group})
}

func (p *recordingPass) Dispatch(x, y, z uint32) {
	p.record(Command{Kind: CmdDispatch, X: x, Y: y, Z: z})
}

func (p *recordingPass) End() {
	p.record(Command{Kind: CmdEndPass})
	p.ended = true
	p.enc.passOpen = false
}
