//go:build webgpu

package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/google/uuid"
)

func init() {
	RegisterFactory("webgpu", func() Backend { return NewWebGPUBackend() })
}

const (
	webgpuWorkgroupSize = 64
	webgpuMaxGroups     = 65535
	webgpuParamsSize    = 64
)

// WebGPUBackend runs single precision plans through wgpu-native. Launches
// in other precisions fail with ErrNotImplemented.
type WebGPUBackend struct{}

// NewWebGPUBackend returns the WebGPU backend. It does not touch the
// native library until a context is created.
func NewWebGPUBackend() *WebGPUBackend {
	return &WebGPUBackend{}
}

// RegisterWebGPUBackend registers the WebGPU backend as the active backend.
func RegisterWebGPUBackend() {
	RegisterBackend(NewWebGPUBackend())
}

func (b *WebGPUBackend) Info() BackendInfo {
	return BackendInfo{
		Name:        "webgpu",
		Version:     "v0.1.0",
		Description: "WebGPU compute shaders via wgpu-native (single precision)",
	}
}

// Available reports whether an adapter can be requested. A missing
// native library panics inside wgpu and counts as unavailable.
func (b *WebGPUBackend) Available() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

func (b *WebGPUBackend) Devices() (devices []DeviceInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			devices = nil
			err = fmt.Errorf("%w: %v", ErrBackendUnavailable, r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	defer adapter.Release()

	return []DeviceInfo{adapterDevice(adapter)}, nil
}

// adapterDevice describes adapter. Adapters that cannot report their info
// get a generic name.
func adapterDevice(adapter *wgpu.Adapter) DeviceInfo {
	info, err := adapter.GetInfo()
	if err != nil || info == nil {
		return DeviceInfo{Name: "webgpu adapter"}
	}

	return DeviceInfo{
		Name:   info.Device,
		Vendor: info.Vendor,
		Driver: info.Description,
	}
}

func (b *WebGPUBackend) NewContext(deviceIndex int) (ctx Context, err error) {
	if deviceIndex != 0 {
		return nil, fmt.Errorf("webgpu backend: device index %d out of range", deviceIndex)
	}

	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("%w: native library not available: %v", ErrBackendUnavailable, r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrBackendUnavailable, err)
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrBackendUnavailable, err)
	}

	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()

		return nil, fmt.Errorf("%w: request device: %w", ErrBackendUnavailable, err)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()

		return nil, fmt.Errorf("%w: no queue", ErrBackendUnavailable)
	}

	return &webgpuContext{
		id:        uuid.New(),
		info:      adapterDevice(adapter),
		instance:  instance,
		adapter:   adapter,
		device:    dev,
		queue:     queue,
		pipelines: make(map[string]*wgpu.ComputePipeline),
		streams:   make(map[*webgpuStream]struct{}),
	}, nil
}

// webgpuContext serializes all queue access; wgpu orders submissions, so
// every stream of a context shares one device queue.
type webgpuContext struct {
	id   uuid.UUID
	info DeviceInfo

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	mu        sync.Mutex
	closed    bool
	used      int64
	pipelines map[string]*wgpu.ComputePipeline
	shaders   []*wgpu.ShaderModule
	streams   map[*webgpuStream]struct{}
}

func (c *webgpuContext) Device() DeviceInfo {
	return c.info
}

func (c *webgpuContext) Alloc(size int64) (buf Buffer, err error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: allocation of %d bytes", ErrOutOfRange, size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: %v", ErrOutOfMemory, r)
		}
	}()

	gb := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  alignedSize(size),
	})
	if gb == nil {
		return nil, fmt.Errorf("%w: %d bytes", ErrOutOfMemory, size)
	}

	c.used += size

	return &webgpuBuffer{ctx: c, buf: gb, size: size}, nil
}

// alignedSize rounds to the 4 byte granularity of buffer copies.
func alignedSize(n int64) uint64 {
	return uint64(max((n+3)&^3, 8))
}

func (c *webgpuContext) NewStream() (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	s := &webgpuStream{ctx: c}
	c.streams[s] = struct{}{}

	return s, nil
}

func (c *webgpuContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	streams := make([]*webgpuStream, 0, len(c.streams))
	for s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	for _, p := range c.pipelines {
		p.Release()
	}

	for _, sh := range c.shaders {
		sh.Release()
	}

	c.pipelines = nil
	c.shaders = nil
	c.queue.Release()
	c.device.Release()
	c.adapter.Release()
	c.instance.Release()

	return nil
}

// pipeline returns the compute pipeline for a shader, compiling it on
// first use. c.mu must be held.
func (c *webgpuContext) pipeline(name, code string) *wgpu.ComputePipeline {
	if p, ok := c.pipelines[name]; ok {
		return p
	}

	shader := c.device.CreateShaderModuleWGSL(code)
	p := c.device.CreateComputePipelineSimple(nil, shader, "main")

	c.shaders = append(c.shaders, shader)
	c.pipelines[name] = p

	return p
}

// upload writes data into dst at offset through a mapped staging buffer.
// c.mu must be held.
func (c *webgpuContext) upload(dst *wgpu.Buffer, offset int64, data []byte) {
	size := alignedSize(int64(len(data)))

	staging := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageMapWrite | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	defer staging.Release()

	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size)
	copy(mapped, data)
	staging.Unmap()

	encoder := c.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, dst, uint64(offset), uint64(len(data)))
	c.queue.Submit(encoder.Finish(nil))
}

// download reads len(dst) bytes at offset; the map waits for every
// earlier submission. c.mu must be held.
func (c *webgpuContext) download(src *wgpu.Buffer, offset int64, dst []byte) error {
	size := alignedSize(int64(len(dst)))

	staging := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	if len(dst) > 0 {
		encoder := c.device.CreateCommandEncoder(nil)
		encoder.CopyBufferToBuffer(src, uint64(offset), staging, 0, uint64(len(dst)))
		c.queue.Submit(encoder.Finish(nil))
	}

	if err := staging.MapAsync(c.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("%w: map staging buffer: %w", ErrDeviceFault, err)
	}

	copy(dst, unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	staging.Unmap()

	return nil
}

type webgpuBuffer struct {
	ctx  *webgpuContext
	buf  *wgpu.Buffer
	size int64

	mu     sync.RWMutex
	closed bool
}

func (b *webgpuBuffer) Size() int64 {
	return b.size
}

func (b *webgpuBuffer) check(offset int64, n int) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	if offset < 0 || offset+int64(n) > b.size {
		return fmt.Errorf("%w: %d bytes at offset %d of %d", ErrOutOfRange, n, offset, b.size)
	}

	if offset%4 != 0 || n%4 != 0 {
		return fmt.Errorf("%w: transfers must be 4 byte aligned", ErrNotImplemented)
	}

	return nil
}

func (b *webgpuBuffer) Write(offset int64, src []byte) (err error) {
	if err := b.check(offset, len(src)); err != nil {
		return err
	}

	if len(src) == 0 {
		return nil
	}

	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()

	if b.ctx.closed {
		return ErrClosed
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDeviceFault, r)
		}
	}()

	b.ctx.upload(b.buf, offset, src)

	return nil
}

func (b *webgpuBuffer) Read(offset int64, dst []byte) (err error) {
	if err := b.check(offset, len(dst)); err != nil {
		return err
	}

	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()

	if b.ctx.closed {
		return ErrClosed
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDeviceFault, r)
		}
	}()

	return b.ctx.download(b.buf, offset, dst)
}

func (b *webgpuBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	b.ctx.mu.Lock()
	b.ctx.used -= b.size
	closed := b.ctx.closed
	b.ctx.mu.Unlock()

	if !closed {
		b.buf.Release()
	}

	return nil
}

func (b *webgpuBuffer) live() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return !b.closed
}

// webgpuParams mirrors the Params struct of the shaders.
type webgpuParams struct {
	length, inner, outer, batch uint32
	inOff, inDist               uint32
	outOff, outDist             uint32
	radix, span                 uint32
	twOff, twLen                uint32
	scale                       float32
	count, rows, cols           uint32
}

func (p webgpuParams) bytes() []byte {
	words := []uint32{
		p.length, p.inner, p.outer, p.batch,
		p.inOff, p.inDist, p.outOff, p.outDist,
		p.radix, p.span, p.twOff, p.twLen,
		math.Float32bits(p.scale), p.count, p.rows, p.cols,
	}

	out := make([]byte, webgpuParamsSize)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}

	return out
}

// webgpuRef is a sample-addressed view of a buffer.
type webgpuRef struct {
	buf  *wgpu.Buffer
	size uint64
	off  uint32
	dist uint32
}

// webgpuStream encodes and submits each launch directly on the context
// queue. wgpu runs submissions in order, so Synchronize only has to wait
// for the queue to drain. Launches after a failure are dropped until
// Synchronize reports it.
type webgpuStream struct {
	ctx *webgpuContext

	// temp are dense staging buffers for multi-pass launches and for
	// launches whose source and destination share a buffer.
	temp     [2]*wgpu.Buffer
	tempSize [2]uint64

	mu     sync.Mutex
	closed bool
	err    error
}

func (s *webgpuStream) Launch(l *Launch) error {
	if l == nil {
		return fmt.Errorf("%w: nil launch", ErrInvalidLaunch)
	}

	if err := s.owns(l); err != nil {
		return &LaunchError{Tag: l.Tag, Kernel: l.Kernel, Err: err}
	}

	if err := l.Validate(); err != nil {
		return &LaunchError{Tag: l.Tag, Kernel: l.Kernel, Err: err}
	}

	if l.Precision != PrecisionSingle {
		return &LaunchError{Tag: l.Tag, Kernel: l.Kernel, Err: fmt.Errorf("%w: %v precision", ErrNotImplemented, l.Precision)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if s.err != nil {
		return nil
	}

	if err := s.submit(l); err != nil {
		s.err = &LaunchError{Tag: l.Tag, Kernel: l.Kernel, Err: err}
	}

	return nil
}

func (s *webgpuStream) owns(l *Launch) error {
	regions := []Region{l.Src, l.Dst}
	if l.Op == OpPasses {
		regions = append(regions, l.Twiddles)
	}

	for _, r := range regions {
		if r.Buffer == nil {
			continue
		}

		b, ok := r.Buffer.(*webgpuBuffer)
		if !ok || b.ctx != s.ctx {
			return ErrForeignBuffer
		}

		if !b.live() {
			return ErrClosed
		}
	}

	return nil
}

func ref(r Region, dist int) webgpuRef {
	b := r.Buffer.(*webgpuBuffer)

	return webgpuRef{
		buf:  b.buf,
		size: alignedSize(b.size),
		off:  uint32(r.Offset / int64(PrecisionSingle.ElemSize())),
		dist: uint32(dist),
	}
}

func scaleOf(l *Launch) float32 {
	if l.Scale == 0 {
		return 1
	}

	return float32(l.Scale)
}

// submit encodes l into one command buffer. s.mu must be held.
func (s *webgpuStream) submit(l *Launch) (err error) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	if s.ctx.closed {
		return ErrClosed
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrDeviceFault, r)
		}
	}()

	enc := &webgpuEncoder{ctx: s.ctx, encoder: s.ctx.device.CreateCommandEncoder(nil)}
	defer enc.release()

	src, dst := ref(l.Src, l.InDist), ref(l.Dst, l.OutDist)

	switch l.Op {
	case OpPasses:
		s.encodePasses(enc, l, src, dst)
	case OpTranspose:
		block := l.Outer * l.Rows * l.Cols
		p := webgpuParams{
			outer: uint32(l.Outer), batch: uint32(l.Batch),
			rows: uint32(l.Rows), cols: uint32(l.Cols),
			scale: scaleOf(l),
		}

		s.route(enc, src, dst, block, l.Batch, p, func(in, out webgpuRef, p webgpuParams) {
			enc.dispatch("transpose", webgpuTransposeWGSL, in, out, nil, p, l.Batch*block)
		})
	case OpCopy:
		p := webgpuParams{count: uint32(l.Count), batch: uint32(l.Batch), scale: scaleOf(l)}

		s.route(enc, src, dst, l.Count, l.Batch, p, func(in, out webgpuRef, p webgpuParams) {
			enc.dispatch("copy", webgpuCopyWGSL, in, out, nil, p, l.Batch*l.Count)
		})
	default:
		return fmt.Errorf("%w: unknown op %v", ErrInvalidLaunch, l.Op)
	}

	s.ctx.queue.Submit(enc.encoder.Finish(nil))

	return nil
}

// encodePasses runs one dispatch per radix, ping-ponging through the
// temp buffers. Only the dispatch that writes dst applies the scale.
func (s *webgpuStream) encodePasses(enc *webgpuEncoder, l *Launch, src, dst webgpuRef) {
	block := l.Outer * l.Length * l.Inner
	tw := ref(l.Twiddles, 0)

	cur := src
	span := l.Span

	for i, r := range l.Radixes {
		p := webgpuParams{
			length: uint32(l.Length), inner: uint32(l.Inner), outer: uint32(l.Outer), batch: uint32(l.Batch),
			radix: uint32(r), span: uint32(span),
			twOff: tw.off, twLen: uint32(l.TwiddleLen),
			scale: 1,
		}

		var next webgpuRef
		if i == len(l.Radixes)-1 && dst.buf != cur.buf {
			next = dst
			p.scale = scaleOf(l)
		} else {
			next = s.tempFor(cur, block, l.Batch)
		}

		p.inOff, p.inDist = cur.off, cur.dist
		p.outOff, p.outDist = next.off, next.dist

		enc.dispatch("passes", webgpuPassWGSL, cur, next, &tw, p, l.Batch*l.Outer*l.Inner*(l.Length/r))

		cur = next
		span *= r
	}

	if cur.buf != dst.buf {
		s.copyOut(enc, cur, dst, block, l.Batch, scaleOf(l))
	}
}

// route runs op from src to dst, going through a temp buffer when both
// regions live in the same buffer.
func (s *webgpuStream) route(enc *webgpuEncoder, src, dst webgpuRef, block, batch int, p webgpuParams,
	op func(in, out webgpuRef, p webgpuParams),
) {
	if src.buf != dst.buf {
		p.inOff, p.inDist = src.off, src.dist
		p.outOff, p.outDist = dst.off, dst.dist
		op(src, dst, p)

		return
	}

	tmp := s.tempFor(src, block, batch)
	p.inOff, p.inDist = src.off, src.dist
	p.outOff, p.outDist = tmp.off, tmp.dist
	op(src, tmp, p)

	s.copyOut(enc, tmp, dst, block, batch, 1)
}

func (s *webgpuStream) copyOut(enc *webgpuEncoder, src, dst webgpuRef, block, batch int, scale float32) {
	p := webgpuParams{
		count: uint32(block), batch: uint32(batch), scale: scale,
		inOff: src.off, inDist: src.dist,
		outOff: dst.off, outDist: dst.dist,
	}

	enc.dispatch("copy", webgpuCopyWGSL, src, dst, nil, p, batch*block)
}

// tempFor returns a dense temp buffer other than the one backing cur,
// growing it to hold batch blocks.
func (s *webgpuStream) tempFor(cur webgpuRef, block, batch int) webgpuRef {
	i := 0
	if s.temp[0] != nil && s.temp[0] == cur.buf {
		i = 1
	}

	need := alignedSize(int64(batch*block) * int64(PrecisionSingle.ElemSize()))
	if s.temp[i] == nil || s.tempSize[i] < need {
		if s.temp[i] != nil {
			s.temp[i].Release()
		}

		s.temp[i] = s.ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
			Size:  need,
		})
		s.tempSize[i] = need
	}

	return webgpuRef{buf: s.temp[i], size: s.tempSize[i], dist: uint32(block)}
}

func (s *webgpuStream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	err := s.drain()

	if s.err != nil {
		err = s.err
	}

	s.err = nil

	return err
}

// drain blocks until the queue has finished every submission so far.
func (s *webgpuStream) drain() error {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	if s.ctx.closed {
		return ErrClosed
	}

	fence := s.ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:  8,
	})
	defer fence.Release()

	var sink [8]byte

	return s.ctx.download(fence, 0, sink[:])
}

func (s *webgpuStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	for i, t := range s.temp {
		if t != nil {
			t.Release()
			s.temp[i] = nil
		}
	}
	s.mu.Unlock()

	s.ctx.mu.Lock()
	delete(s.ctx.streams, s)
	s.ctx.mu.Unlock()

	return nil
}

// webgpuEncoder records dispatches into one compute pass each and keeps
// the per-dispatch resources alive until the command buffer is submitted.
type webgpuEncoder struct {
	ctx      *webgpuContext
	encoder  *wgpu.CommandEncoder
	uniforms []*wgpu.Buffer
	groups   []*wgpu.BindGroup
}

func (e *webgpuEncoder) dispatch(name, code string, in, out webgpuRef, tw *webgpuRef, p webgpuParams, invocations int) {
	pipeline := e.ctx.pipeline(name, code)

	params := e.ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             webgpuParamsSize,
		MappedAtCreation: wgpu.True,
	})
	copy(unsafe.Slice((*byte)(params.GetMappedRange(0, webgpuParamsSize)), webgpuParamsSize), p.bytes())
	params.Unmap()
	e.uniforms = append(e.uniforms, params)

	entries := []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, in.buf, 0, in.size),
		wgpu.BufferBindingEntry(1, out.buf, 0, out.size),
		wgpu.BufferBindingEntry(2, params, 0, webgpuParamsSize),
	}
	if tw != nil {
		entries = append(entries, wgpu.BufferBindingEntry(3, tw.buf, 0, tw.size))
	}

	layout := pipeline.GetBindGroupLayout(0)
	group := e.ctx.device.CreateBindGroupSimple(layout, entries)
	layout.Release()
	e.groups = append(e.groups, group)

	x, y := workgroups(invocations)

	pass := e.encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.DispatchWorkgroups(x, y, 1)
	pass.End()
}

func (e *webgpuEncoder) release() {
	for _, g := range e.groups {
		g.Release()
	}

	for _, u := range e.uniforms {
		u.Release()
	}
}

// workgroups spreads invocations over a 2D grid; the shaders recover the
// linear index from num_workgroups.
func workgroups(invocations int) (x, y uint32) {
	groups := (invocations + webgpuWorkgroupSize - 1) / webgpuWorkgroupSize
	if groups <= webgpuMaxGroups {
		return uint32(max(groups, 1)), 1
	}

	rows := (groups + webgpuMaxGroups - 1) / webgpuMaxGroups

	return webgpuMaxGroups, uint32(rows)
}
