package policy

import (
	"math"
	"math/rand"
)

// network is a one-hidden-layer perceptron mapping a state to one value per
// action: q = W2 * relu(W1 * x + b1) + b2.
type network struct {
	in, hidden, out int

	w1 []float64 // hidden x in, row-major
	b1 []float64
	w2 []float64 // out x hidden, row-major
	b2 []float64
}

func newNetwork(in, hidden, out int, rnd *rand.Rand) *network {
	n := &network{
		in:     in,
		hidden: hidden,
		out:    out,
		w1:     make([]float64, hidden*in),
		b1:     make([]float64, hidden),
		w2:     make([]float64, out*hidden),
		b2:     make([]float64, out),
	}
	// He initialization for the ReLU layer, small uniform for the head
	std := math.Sqrt(2 / float64(in))
	for i := range n.w1 {
		n.w1[i] = rnd.NormFloat64() * std
	}
	limit := 1 / math.Sqrt(float64(hidden))
	for i := range n.w2 {
		n.w2[i] = (rnd.Float64()*2 - 1) * limit * 0.1
	}
	return n
}

func (n *network) forward(x []float64) (h, q []float64) {
	h = make([]float64, n.hidden)
	for j := 0; j < n.hidden; j++ {
		sum := n.b1[j]
		row := n.w1[j*n.in : (j+1)*n.in]
		for k, v := range x {
			sum += row[k] * v
		}
		if sum > 0 {
			h[j] = sum
		}
	}
	q = make([]float64, n.out)
	for a := 0; a < n.out; a++ {
		sum := n.b2[a]
		row := n.w2[a*n.hidden : (a+1)*n.hidden]
		for j, v := range h {
			sum += row[j] * v
		}
		q[a] = sum
	}
	return h, q
}

// fit takes one gradient step on 0.5*(q[action]-target)^2. The other outputs
// contribute no error, so their targets are their own current predictions.
func (n *network) fit(x []float64, action int, target, lr, clip float64) {
	h, q := n.forward(x)

	dq := q[action] - target
	if clip > 0 {
		dq = math.Max(-clip, math.Min(clip, dq))
	}

	row := n.w2[action*n.hidden : (action+1)*n.hidden]
	dh := make([]float64, n.hidden)
	for j := range dh {
		if h[j] > 0 {
			dh[j] = dq * row[j]
		}
	}

	for j := range row {
		row[j] -= lr * dq * h[j]
	}
	n.b2[action] -= lr * dq

	for j := 0; j < n.hidden; j++ {
		if dh[j] == 0 {
			continue
		}
		w := n.w1[j*n.in : (j+1)*n.in]
		for k, v := range x {
			w[k] -= lr * dh[j] * v
		}
		n.b1[j] -= lr * dh[j]
	}
}

func (n *network) params() []float64 {
	out := make([]float64, 0, len(n.w1)+len(n.b1)+len(n.w2)+len(n.b2))
	out = append(out, n.w1...)
	out = append(out, n.b1...)
	out = append(out, n.w2...)
	return append(out, n.b2...)
}

func (n *network) numParams() int {
	return len(n.w1) + len(n.b1) + len(n.w2) + len(n.b2)
}

func (n *network) setParams(p []float64) {
	off := copy(n.w1, p)
	off += copy(n.b1, p[off:])
	off += copy(n.w2, p[off:])
	copy(n.b2, p[off:])
}
