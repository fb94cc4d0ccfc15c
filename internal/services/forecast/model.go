package forecast

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"StockPulse/internal/domain/models"
)

// Network dimensions. The stack is two stacked recurrent layers, a
// self-attention pass over the second layer's sequence, a collapsing
// recurrent layer and a small dense head.
const (
	hidden1    = 128
	hidden2    = 64
	hidden3    = 32
	dense1Size = 64
	dense2Size = 32

	dropSeq  = 0.3
	dropHead = 0.2
)

// Model is a sequence regression network mapping a scaled feature window to
// the next scaled close. All state is plain float64, so inference is
// dependency-free and deterministic for a fixed seed.
type Model struct {
	features int
	seed     int64
	rng      *rand.Rand

	lstm1 *lstmLayer
	ln1   *layerNorm
	lstm2 *lstmLayer
	ln2   *layerNorm
	lstm3 *lstmLayer
	ln3   *layerNorm
	fc1   *denseLayer
	fc2   *denseLayer
	out   *denseLayer
}

func NewModel(features int, seed int64) *Model {
	rng := rand.New(rand.NewSource(seed))
	m := &Model{
		features: features,
		seed:     seed,
		rng:      rng,
		lstm1:    newLSTMLayer(rng, features, hidden1),
		ln1:      newLayerNorm(hidden1),
		lstm2:    newLSTMLayer(rng, hidden1, hidden2),
		ln2:      newLayerNorm(hidden2),
		lstm3:    newLSTMLayer(rng, 2*hidden2, hidden3),
		ln3:      newLayerNorm(hidden3),
		fc1:      newDenseLayer(rng, hidden3, dense1Size, true),
		fc2:      newDenseLayer(rng, dense1Size, dense2Size, true),
		out:      newDenseLayer(rng, dense2Size, 1, false),
	}
	return m
}

func (m *Model) Features() int { return m.features }

func (m *Model) params() []*tensor {
	var ps []*tensor
	ps = append(ps, m.lstm1.params()...)
	ps = append(ps, m.ln1.params()...)
	ps = append(ps, m.lstm2.params()...)
	ps = append(ps, m.ln2.params()...)
	ps = append(ps, m.lstm3.params()...)
	ps = append(ps, m.ln3.params()...)
	ps = append(ps, m.fc1.params()...)
	ps = append(ps, m.fc2.params()...)
	ps = append(ps, m.out.params()...)
	return ps
}

func (m *Model) zeroGrad() {
	for _, p := range m.params() {
		p.zeroGrad()
	}
}

type forwardCache struct {
	c1    *lstmCache
	ln1St []lnStep
	mask1 [][]float64
	c2    *lstmCache
	ln2St []lnStep
	mask2 [][]float64
	attn  *attnCache
	c3    *lstmCache
	ln3St lnStep
	mask3 []float64
	fc1St denseStep
	maskF []float64
	fc2St denseStep
	outSt denseStep
	T     int
}

// forward runs the network on one window (rows of length features). In
// training mode dropout masks are sampled and cached for the backward pass.
func (m *Model) forward(window [][]float64, train bool) (float64, *forwardCache) {
	fc := &forwardCache{T: len(window)}

	h1, c1 := m.lstm1.forward(window)
	fc.c1 = c1
	n1, ln1St := m.ln1.forwardSeq(h1)
	fc.ln1St = ln1St
	if train {
		fc.mask1 = dropoutSeq(m.rng, n1, dropSeq)
	}

	h2, c2 := m.lstm2.forward(n1)
	fc.c2 = c2
	n2, ln2St := m.ln2.forwardSeq(h2)
	fc.ln2St = ln2St
	if train {
		fc.mask2 = dropoutSeq(m.rng, n2, dropSeq)
	}

	att, attnC := attentionForward(n2)
	fc.attn = attnC

	cat := make([][]float64, fc.T)
	for t := 0; t < fc.T; t++ {
		row := make([]float64, 2*hidden2)
		copy(row[:hidden2], n2[t])
		copy(row[hidden2:], att[t])
		cat[t] = row
	}

	h3, c3 := m.lstm3.forward(cat)
	fc.c3 = c3
	n3, ln3St := m.ln3.forwardVec(h3[fc.T-1])
	fc.ln3St = ln3St
	if train {
		fc.mask3 = dropoutVec(m.rng, n3, dropHead)
	}

	f1, fc1St := m.fc1.forward(n3)
	fc.fc1St = fc1St
	if train {
		fc.maskF = dropoutVec(m.rng, f1, dropHead)
	}

	f2, fc2St := m.fc2.forward(f1)
	fc.fc2St = fc2St

	y, outSt := m.out.forward(f2)
	fc.outSt = outSt

	return y[0], fc
}

// backward accumulates gradients for dLoss/dy into the parameter tensors.
func (m *Model) backward(fc *forwardCache, dy float64) {
	dF2 := m.out.backward(fc.outSt, []float64{dy})
	dF1 := m.fc2.backward(fc.fc2St, dF2)
	dropoutBackwardVec(fc.maskF, dF1)
	dN3 := m.fc1.backward(fc.fc1St, dF1)
	dropoutBackwardVec(fc.mask3, dN3)
	dH3Last := m.ln3.backwardVec(fc.ln3St, dN3)

	dH3 := make([][]float64, fc.T)
	dH3[fc.T-1] = dH3Last
	dCat := m.lstm3.backward(fc.c3, dH3)

	dN2 := make([][]float64, fc.T)
	dAtt := make([][]float64, fc.T)
	for t := 0; t < fc.T; t++ {
		dN2[t] = append([]float64(nil), dCat[t][:hidden2]...)
		dAtt[t] = dCat[t][hidden2:]
	}
	dN2FromAttn := attentionBackward(fc.attn, dAtt)
	for t := 0; t < fc.T; t++ {
		for k := 0; k < hidden2; k++ {
			dN2[t][k] += dN2FromAttn[t][k]
		}
	}

	dropoutBackwardSeq(fc.mask2, dN2)
	dH2 := m.ln2.backwardSeq(fc.ln2St, dN2)
	dN1 := m.lstm2.backward(fc.c2, dH2)
	dropoutBackwardSeq(fc.mask1, dN1)
	dH1 := m.ln1.backwardSeq(fc.ln1St, dN1)
	m.lstm1.backward(fc.c1, dH1)
}

// Predict runs the network in inference mode.
func (m *Model) Predict(window [][]float64) (float64, error) {
	if len(window) == 0 {
		return 0, fmt.Errorf("%w: empty window", models.ErrModelInference)
	}
	for _, row := range window {
		if len(row) != m.features {
			return 0, fmt.Errorf("%w: window width %d != %d features", models.ErrModelInference, len(row), m.features)
		}
	}
	y, _ := m.forward(window, false)
	return y, nil
}

// modelState is the serialized form of a trained model.
type modelState struct {
	Features int         `json:"features"`
	Seed     int64       `json:"seed"`
	Lstm1    *lstmLayer  `json:"lstm1"`
	Ln1      *layerNorm  `json:"ln1"`
	Lstm2    *lstmLayer  `json:"lstm2"`
	Ln2      *layerNorm  `json:"ln2"`
	Lstm3    *lstmLayer  `json:"lstm3"`
	Ln3      *layerNorm  `json:"ln3"`
	Fc1      *denseLayer `json:"fc1"`
	Fc2      *denseLayer `json:"fc2"`
	Out      *denseLayer `json:"out"`
}

// ExportWeights serializes the trained parameters to JSON.
func (m *Model) ExportWeights() ([]byte, error) {
	return json.Marshal(modelState{
		Features: m.features,
		Seed:     m.seed,
		Lstm1:    m.lstm1, Ln1: m.ln1,
		Lstm2: m.lstm2, Ln2: m.ln2,
		Lstm3: m.lstm3, Ln3: m.ln3,
		Fc1: m.fc1, Fc2: m.fc2, Out: m.out,
	})
}

// ImportModel rebuilds a model from serialized weights.
func ImportModel(data []byte) (*Model, error) {
	var st modelState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode model weights: %w", err)
	}
	if st.Features <= 0 || st.Lstm1 == nil || st.Out == nil {
		return nil, fmt.Errorf("decode model weights: incomplete state")
	}
	m := &Model{
		features: st.Features,
		seed:     st.Seed,
		rng:      rand.New(rand.NewSource(st.Seed)),
		lstm1:    st.Lstm1, ln1: st.Ln1,
		lstm2: st.Lstm2, ln2: st.Ln2,
		lstm3: st.Lstm3, ln3: st.Ln3,
		fc1: st.Fc1, fc2: st.Fc2, out: st.Out,
	}
	for _, p := range m.params() {
		p.ensureState()
	}
	return m, nil
}
