//go:build webgpu

package device

// All shaders share one uniform layout (webgpuParams) and index complex
// samples as vec2<f32>. Offsets and distances are in samples.

const webgpuParamsWGSL = `
struct Params {
    length: u32,
    inner: u32,
    outer: u32,
    batch: u32,
    in_off: u32,
    in_dist: u32,
    out_off: u32,
    out_dist: u32,
    radix: u32,
    span: u32,
    tw_off: u32,
    tw_len: u32,
    scale: f32,
    count: u32,
    rows: u32,
    cols: u32,
}

fn cmul(a: vec2<f32>, b: vec2<f32>) -> vec2<f32> {
    return vec2<f32>(a.x * b.x - a.y * b.y, a.x * b.y + a.y * b.x);
}

fn invocation(gid: vec3<u32>, groups: vec3<u32>) -> u32 {
    return gid.x + gid.y * groups.x * 64u;
}
`

// One radix-r Stockham pass. Each invocation computes one butterfly of one
// line; twiddles are W_T^e with T = tw_len.
const webgpuPassWGSL = webgpuParamsWGSL + `
@group(0) @binding(0) var<storage, read> src_data: array<vec2<f32>>;
@group(0) @binding(1) var<storage, read_write> dst_data: array<vec2<f32>>;
@group(0) @binding(2) var<uniform> p: Params;
@group(0) @binding(3) var<storage, read> twiddles: array<vec2<f32>>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) groups: vec3<u32>) {
    let id = invocation(gid, groups);
    let m = p.length / p.radix;
    if (id >= p.batch * p.outer * p.inner * m) {
        return;
    }

    let j = id % m;
    let line = id / m;
    let c = line % p.inner;
    let o = (line / p.inner) % p.outer;
    let b = line / (p.inner * p.outer);
    let block = o * p.length * p.inner + c;
    let src = p.in_off + b * p.in_dist + block;
    let dst = p.out_off + b * p.out_dist + block;

    let l = p.span * p.radix;
    let step = p.tw_len / l;
    let k = j % p.span;

    var v: array<vec2<f32>, 16>;
    for (var t = 0u; t < p.radix; t++) {
        v[t] = cmul(src_data[src + (j + t * m) * p.inner], twiddles[p.tw_off + ((t * k) % l) * step]);
    }

    let base = (j / p.span) * l + k;
    for (var q = 0u; q < p.radix; q++) {
        var acc = vec2<f32>(0.0, 0.0);
        for (var t = 0u; t < p.radix; t++) {
            acc += cmul(v[t], twiddles[p.tw_off + ((t * q) % p.radix) * p.span * step]);
        }
        dst_data[dst + (base + q * p.span) * p.inner] = acc * p.scale;
    }
}
`

const webgpuTransposeWGSL = webgpuParamsWGSL + `
@group(0) @binding(0) var<storage, read> src_data: array<vec2<f32>>;
@group(0) @binding(1) var<storage, read_write> dst_data: array<vec2<f32>>;
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) groups: vec3<u32>) {
    let id = invocation(gid, groups);
    let size = p.rows * p.cols;
    if (id >= p.batch * p.outer * size) {
        return;
    }

    let i = id % size;
    let mtx = id / size;
    let b = mtx / p.outer;
    let o = mtx % p.outer;
    let r = i / p.cols;
    let c = i % p.cols;

    dst_data[p.out_off + b * p.out_dist + o * size + c * p.rows + r] =
        src_data[p.in_off + b * p.in_dist + o * size + i] * p.scale;
}
`

const webgpuCopyWGSL = webgpuParamsWGSL + `
@group(0) @binding(0) var<storage, read> src_data: array<vec2<f32>>;
@group(0) @binding(1) var<storage, read_write> dst_data: array<vec2<f32>>;
@group(0) @binding(2) var<uniform> p: Params;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) groups: vec3<u32>) {
    let id = invocation(gid, groups);
    if (id >= p.batch * p.count) {
        return;
    }

    let b = id / p.count;
    let i = id % p.count;

    dst_data[p.out_off + b * p.out_dist + i] = src_data[p.in_off + b * p.in_dist + i] * p.scale;
}
`
