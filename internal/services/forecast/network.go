package forecast

import (
	"math"
	"math/rand"
)

// tensor is a dense row-major parameter matrix with its gradient and Adam
// moment buffers. Only the weights serialize; optimizer state is rebuilt.
type tensor struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	W    []float64 `json:"w"`

	grad []float64
	m    []float64
	v    []float64
}

func newTensor(rows, cols int) *tensor {
	n := rows * cols
	return &tensor{
		Rows: rows,
		Cols: cols,
		W:    make([]float64, n),
		grad: make([]float64, n),
		m:    make([]float64, n),
		v:    make([]float64, n),
	}
}

// initUniform fills the tensor with Glorot-style uniform noise.
func (t *tensor) initUniform(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range t.W {
		t.W[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (t *tensor) fill(v float64) {
	for i := range t.W {
		t.W[i] = v
	}
}

func (t *tensor) zeroGrad() {
	for i := range t.grad {
		t.grad[i] = 0
	}
}

// ensureState rebuilds unexported buffers after JSON import.
func (t *tensor) ensureState() {
	n := t.Rows * t.Cols
	if len(t.grad) != n {
		t.grad = make([]float64, n)
		t.m = make([]float64, n)
		t.v = make([]float64, n)
	}
}

// matVec computes t·x for x of length Cols.
func (t *tensor) matVec(x []float64) []float64 {
	out := make([]float64, t.Rows)
	for i := 0; i < t.Rows; i++ {
		row := t.W[i*t.Cols : (i+1)*t.Cols]
		var sum float64
		for j, w := range row {
			sum += w * x[j]
		}
		out[i] = sum
	}
	return out
}

// matVecT computes tᵀ·d for d of length Rows.
func (t *tensor) matVecT(d []float64) []float64 {
	out := make([]float64, t.Cols)
	for i := 0; i < t.Rows; i++ {
		row := t.W[i*t.Cols : (i+1)*t.Cols]
		di := d[i]
		for j, w := range row {
			out[j] += w * di
		}
	}
	return out
}

// accumOuter adds d ⊗ x into the gradient.
func (t *tensor) accumOuter(d, x []float64) {
	for i := 0; i < t.Rows; i++ {
		g := t.grad[i*t.Cols : (i+1)*t.Cols]
		di := d[i]
		for j := range g {
			g[j] += di * x[j]
		}
	}
}

func (t *tensor) accumVec(d []float64) {
	for i := range d {
		t.grad[i] += d[i]
	}
}

// adam applies one Adam update to every tensor.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	step  int
}

func newAdam(lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
}

func (a *adam) update(params []*tensor, scale float64) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))
	for _, t := range params {
		for i := range t.W {
			g := t.grad[i] * scale
			t.m[i] = a.beta1*t.m[i] + (1-a.beta1)*g
			t.v[i] = a.beta2*t.v[i] + (1-a.beta2)*g*g
			mh := t.m[i] / c1
			vh := t.v[i] / c2
			t.W[i] -= a.lr * mh / (math.Sqrt(vh) + a.eps)
		}
	}
}

// --- recurrent layer ---

// lstmLayer holds gate weights in i,f,g,o block order: Wx (4h x in),
// Wh (4h x h), B (1 x 4h).
type lstmLayer struct {
	In int     `json:"in"`
	H  int     `json:"h"`
	Wx *tensor `json:"wx"`
	Wh *tensor `json:"wh"`
	B  *tensor `json:"b"`
}

func newLSTMLayer(rng *rand.Rand, in, h int) *lstmLayer {
	l := &lstmLayer{
		In: in,
		H:  h,
		Wx: newTensor(4*h, in),
		Wh: newTensor(4*h, h),
		B:  newTensor(1, 4*h),
	}
	l.Wx.initUniform(rng, in, h)
	l.Wh.initUniform(rng, h, h)
	// forget gate bias starts open
	for i := h; i < 2*h; i++ {
		l.B.W[i] = 1
	}
	return l
}

func (l *lstmLayer) params() []*tensor { return []*tensor{l.Wx, l.Wh, l.B} }

type lstmStep struct {
	x, hPrev, cPrev []float64
	i, f, g, o      []float64
	c, tc           []float64
}

type lstmCache struct {
	steps []lstmStep
}

// forward runs the full sequence and returns every hidden state.
func (l *lstmLayer) forward(xs [][]float64) ([][]float64, *lstmCache) {
	h := l.H
	hPrev := make([]float64, h)
	cPrev := make([]float64, h)
	hs := make([][]float64, len(xs))
	cache := &lstmCache{steps: make([]lstmStep, len(xs))}

	for t, x := range xs {
		z := l.Wx.matVec(x)
		zh := l.Wh.matVec(hPrev)
		for i := range z {
			z[i] += zh[i] + l.B.W[i]
		}

		st := lstmStep{
			x: x, hPrev: hPrev, cPrev: cPrev,
			i: make([]float64, h), f: make([]float64, h),
			g: make([]float64, h), o: make([]float64, h),
			c: make([]float64, h), tc: make([]float64, h),
		}
		hNew := make([]float64, h)
		for j := 0; j < h; j++ {
			st.i[j] = sigmoid(z[j])
			st.f[j] = sigmoid(z[h+j])
			st.g[j] = math.Tanh(z[2*h+j])
			st.o[j] = sigmoid(z[3*h+j])
			st.c[j] = st.f[j]*cPrev[j] + st.i[j]*st.g[j]
			st.tc[j] = math.Tanh(st.c[j])
			hNew[j] = st.o[j] * st.tc[j]
		}
		cache.steps[t] = st
		hs[t] = hNew
		hPrev = hNew
		cPrev = st.c
	}
	return hs, cache
}

// backward propagates dHs (gradient per timestep hidden state) through time
// and returns the gradient for each input.
func (l *lstmLayer) backward(cache *lstmCache, dHs [][]float64) [][]float64 {
	h := l.H
	T := len(cache.steps)
	dxs := make([][]float64, T)
	dhNext := make([]float64, h)
	dcNext := make([]float64, h)
	dz := make([]float64, 4*h)

	for t := T - 1; t >= 0; t-- {
		st := cache.steps[t]
		for j := 0; j < h; j++ {
			dh := dhNext[j]
			if dHs[t] != nil {
				dh += dHs[t][j]
			}
			do := dh * st.tc[j]
			dc := dcNext[j] + dh*st.o[j]*(1-st.tc[j]*st.tc[j])
			di := dc * st.g[j]
			df := dc * st.cPrev[j]
			dg := dc * st.i[j]

			dz[j] = di * st.i[j] * (1 - st.i[j])
			dz[h+j] = df * st.f[j] * (1 - st.f[j])
			dz[2*h+j] = dg * (1 - st.g[j]*st.g[j])
			dz[3*h+j] = do * st.o[j] * (1 - st.o[j])
			dcNext[j] = dc * st.f[j]
		}

		l.Wx.accumOuter(dz, st.x)
		l.Wh.accumOuter(dz, st.hPrev)
		l.B.accumVec(dz)

		dxs[t] = l.Wx.matVecT(dz)
		dhNext = l.Wh.matVecT(dz)
	}
	return dxs
}

// --- layer normalization ---

type layerNorm struct {
	Dim   int     `json:"dim"`
	Gamma *tensor `json:"gamma"`
	Beta  *tensor `json:"beta"`
}

const lnEps = 1e-5

func newLayerNorm(dim int) *layerNorm {
	ln := &layerNorm{Dim: dim, Gamma: newTensor(1, dim), Beta: newTensor(1, dim)}
	ln.Gamma.fill(1)
	return ln
}

func (ln *layerNorm) params() []*tensor { return []*tensor{ln.Gamma, ln.Beta} }

type lnStep struct {
	xhat   []float64
	invStd float64
}

func (ln *layerNorm) forwardVec(x []float64) ([]float64, lnStep) {
	n := float64(len(x))
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= n
	var variance float64
	for _, v := range x {
		d := v - mean
		variance += d * d
	}
	variance /= n
	invStd := 1 / math.Sqrt(variance+lnEps)

	st := lnStep{xhat: make([]float64, len(x)), invStd: invStd}
	out := make([]float64, len(x))
	for i, v := range x {
		st.xhat[i] = (v - mean) * invStd
		out[i] = ln.Gamma.W[i]*st.xhat[i] + ln.Beta.W[i]
	}
	return out, st
}

func (ln *layerNorm) backwardVec(st lnStep, dOut []float64) []float64 {
	n := float64(len(dOut))
	dxhat := make([]float64, len(dOut))
	var sumDxhat, sumDxhatXhat float64
	for i, d := range dOut {
		ln.Gamma.grad[i] += d * st.xhat[i]
		ln.Beta.grad[i] += d
		dxhat[i] = d * ln.Gamma.W[i]
		sumDxhat += dxhat[i]
		sumDxhatXhat += dxhat[i] * st.xhat[i]
	}
	dx := make([]float64, len(dOut))
	for i := range dx {
		dx[i] = st.invStd / n * (n*dxhat[i] - sumDxhat - st.xhat[i]*sumDxhatXhat)
	}
	return dx
}

func (ln *layerNorm) forwardSeq(xs [][]float64) ([][]float64, []lnStep) {
	out := make([][]float64, len(xs))
	steps := make([]lnStep, len(xs))
	for t, x := range xs {
		out[t], steps[t] = ln.forwardVec(x)
	}
	return out, steps
}

func (ln *layerNorm) backwardSeq(steps []lnStep, dOut [][]float64) [][]float64 {
	dx := make([][]float64, len(dOut))
	for t, d := range dOut {
		if d == nil {
			continue
		}
		dx[t] = ln.backwardVec(steps[t], d)
	}
	return dx
}

// --- dense layer ---

type denseLayer struct {
	In   int     `json:"in"`
	Out  int     `json:"out"`
	W    *tensor `json:"w"`
	B    *tensor `json:"b"`
	ReLU bool    `json:"relu"`
}

func newDenseLayer(rng *rand.Rand, in, out int, relu bool) *denseLayer {
	d := &denseLayer{In: in, Out: out, W: newTensor(out, in), B: newTensor(1, out), ReLU: relu}
	d.W.initUniform(rng, in, out)
	return d
}

func (d *denseLayer) params() []*tensor { return []*tensor{d.W, d.B} }

type denseStep struct {
	x   []float64
	pre []float64
}

func (d *denseLayer) forward(x []float64) ([]float64, denseStep) {
	pre := d.W.matVec(x)
	for i := range pre {
		pre[i] += d.B.W[i]
	}
	out := pre
	if d.ReLU {
		out = make([]float64, len(pre))
		for i, v := range pre {
			if v > 0 {
				out[i] = v
			}
		}
	}
	return out, denseStep{x: x, pre: pre}
}

func (d *denseLayer) backward(st denseStep, dOut []float64) []float64 {
	dPre := dOut
	if d.ReLU {
		dPre = make([]float64, len(dOut))
		for i, v := range dOut {
			if st.pre[i] > 0 {
				dPre[i] = v
			}
		}
	}
	d.W.accumOuter(dPre, st.x)
	d.B.accumVec(dPre)
	return d.W.matVecT(dPre)
}

// --- scaled dot-product self-attention (no learned parameters) ---

type attnCache struct {
	h     [][]float64
	probs [][]float64
	scale float64
}

func attentionForward(h [][]float64) ([][]float64, *attnCache) {
	T := len(h)
	d := len(h[0])
	scale := 1 / math.Sqrt(float64(d))

	probs := make([][]float64, T)
	out := make([][]float64, T)
	for t := 0; t < T; t++ {
		scores := make([]float64, T)
		maxScore := math.Inf(-1)
		for s := 0; s < T; s++ {
			var dot float64
			for k := 0; k < d; k++ {
				dot += h[t][k] * h[s][k]
			}
			scores[s] = dot * scale
			if scores[s] > maxScore {
				maxScore = scores[s]
			}
		}
		var sum float64
		for s := range scores {
			scores[s] = math.Exp(scores[s] - maxScore)
			sum += scores[s]
		}
		for s := range scores {
			scores[s] /= sum
		}
		probs[t] = scores

		o := make([]float64, d)
		for s := 0; s < T; s++ {
			p := scores[s]
			for k := 0; k < d; k++ {
				o[k] += p * h[s][k]
			}
		}
		out[t] = o
	}
	return out, &attnCache{h: h, probs: probs, scale: scale}
}

func attentionBackward(c *attnCache, dOut [][]float64) [][]float64 {
	T := len(c.h)
	d := len(c.h[0])
	dh := make([][]float64, T)
	for t := range dh {
		dh[t] = make([]float64, d)
	}

	for t := 0; t < T; t++ {
		if dOut[t] == nil {
			continue
		}
		// dA[t][s] = dOut_t · h_s; value path: dh_s += A[t][s] * dOut_t
		dA := make([]float64, T)
		for s := 0; s < T; s++ {
			var dot float64
			p := c.probs[t][s]
			for k := 0; k < d; k++ {
				dot += dOut[t][k] * c.h[s][k]
				dh[s][k] += p * dOut[t][k]
			}
			dA[s] = dot
		}
		// softmax backward over row t
		var rowDot float64
		for s := 0; s < T; s++ {
			rowDot += dA[s] * c.probs[t][s]
		}
		for s := 0; s < T; s++ {
			dScore := c.probs[t][s] * (dA[s] - rowDot) * c.scale
			for k := 0; k < d; k++ {
				dh[t][k] += dScore * c.h[s][k]
				dh[s][k] += dScore * c.h[t][k]
			}
		}
	}
	return dh
}

// --- dropout ---

// dropoutSeq applies inverted dropout in place and returns the masks.
func dropoutSeq(rng *rand.Rand, xs [][]float64, rate float64) [][]float64 {
	if rate <= 0 {
		return nil
	}
	keep := 1 - rate
	masks := make([][]float64, len(xs))
	for t, x := range xs {
		mask := make([]float64, len(x))
		for i := range x {
			if rng.Float64() < keep {
				mask[i] = 1 / keep
			}
			x[i] *= mask[i]
		}
		masks[t] = mask
	}
	return masks
}

func dropoutBackwardSeq(masks, dxs [][]float64) {
	if masks == nil {
		return
	}
	for t, dx := range dxs {
		if dx == nil {
			continue
		}
		for i := range dx {
			dx[i] *= masks[t][i]
		}
	}
}

func dropoutVec(rng *rand.Rand, x []float64, rate float64) []float64 {
	if rate <= 0 {
		return nil
	}
	keep := 1 - rate
	mask := make([]float64, len(x))
	for i := range x {
		if rng.Float64() < keep {
			mask[i] = 1 / keep
		}
		x[i] *= mask[i]
	}
	return mask
}

func dropoutBackwardVec(mask, dx []float64) {
	if mask == nil {
		return
	}
	for i := range dx {
		dx[i] *= mask[i]
	}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
