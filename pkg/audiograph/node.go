package audiograph

// bus is one quantum of stereo audio. Mono signals carry identical data in
// both channels with channels == 1 so panners can pick the mono law.
type bus struct {
	ch       [2][RenderQuantum]float32
	channels int
	silent   bool
}

func (b *bus) reset() {
	b.ch[0] = [RenderQuantum]float32{}
	b.ch[1] = [RenderQuantum]float32{}
	b.channels = 1
	b.silent = true
}

func (b *bus) add(src *bus) {
	if src.silent {
		return
	}
	for i := range RenderQuantum {
		b.ch[0][i] += src.ch[0][i]
		b.ch[1][i] += src.ch[1][i]
	}
	b.channels = max(b.channels, src.channels)
	b.silent = false
}

// processor renders one quantum of a node from its mixed input.
type processor interface {
	process(in, out *bus, t0 float64)
}

// feedbackProcessor renders its output before its inputs are pulled, which
// lets it sit inside a cycle. DelayNode is the only implementation.
type feedbackProcessor interface {
	emit(out *bus, t0 float64)
	absorb(in *bus)
}

// Node is implemented by every graph node.
type Node interface {
	graphNode() *node
}

type node struct {
	ctx     *Context
	proc    processor
	inputs  []*node
	outputs []*node

	lastQuantum int64
	in          bus
	out         bus
}

func newNode(ctx *Context, proc processor) *node {
	n := &node{ctx: ctx, proc: proc, lastQuantum: -1}
	n.out.reset()
	return n
}

func (n *node) graphNode() *node { return n }

// Connect routes this node's output into dst.
// Connecting the same pair twice has no additional effect.
func (n *node) Connect(dst Node) {
	d := dst.graphNode()
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	for _, in := range d.inputs {
		if in == n {
			return
		}
	}
	d.inputs = append(d.inputs, n)
	n.outputs = append(n.outputs, d)
}

// Disconnect removes every outgoing connection of this node.
func (n *node) Disconnect() {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	for _, d := range n.outputs {
		d.inputs = removeNode(d.inputs, n)
	}
	n.outputs = nil
}

// NumInputs returns the number of nodes connected into this node.
func (n *node) NumInputs() int {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()
	return len(n.inputs)
}

func removeNode(list []*node, target *node) []*node {
	kept := list[:0]
	for _, x := range list {
		if x != target {
			kept = append(kept, x)
		}
	}
	clear(list[len(kept):])
	return kept
}

// pull renders the node for quantum q once and returns its output.
// A node reached again within the same quantum (a cycle) returns its
// current output. Must be called with ctx.mu held.
func (n *node) pull(q int64, t0 float64) *bus {
	if n.lastQuantum == q {
		return &n.out
	}
	n.lastQuantum = q

	if fb, ok := n.proc.(feedbackProcessor); ok {
		fb.emit(&n.out, t0)
		n.mix(q, t0)
		fb.absorb(&n.in)
		return &n.out
	}

	n.mix(q, t0)
	n.proc.process(&n.in, &n.out, t0)
	return &n.out
}

func (n *node) mix(q int64, t0 float64) {
	n.in.reset()
	for _, src := range n.inputs {
		n.in.add(src.pull(q, t0))
	}
}

type passthrough struct{}

func (passthrough) process(in, out *bus, _ float64) {
	*out = *in
}

// DestinationNode is the graph output. Everything audible is connected to it.
type DestinationNode struct {
	*node
}

// GainNode multiplies its input by an a-rate gain parameter.
type GainNode struct {
	*node
	Gain *Param

	values [RenderQuantum]float32
}

// NewGain creates a gain node with the given initial gain.
func (c *Context) NewGain(gain float64) *GainNode {
	g := &GainNode{}
	g.node = newNode(c, g)
	g.Gain = newParam(c, gain, -1e9, 1e9)
	return g
}

func (g *GainNode) process(in, out *bus, t0 float64) {
	g.Gain.fill(g.values[:], t0)
	out.channels = in.channels
	if in.silent {
		out.reset()
		out.channels = in.channels
		return
	}
	silent := true
	for i := range RenderQuantum {
		v := g.values[i]
		if v != 0 {
			silent = false
		}
		out.ch[0][i] = in.ch[0][i] * v
		out.ch[1][i] = in.ch[1][i] * v
	}
	out.silent = silent
}
