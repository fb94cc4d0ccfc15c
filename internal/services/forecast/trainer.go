package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/services/features"
	"StockPulse/pkg/config"
	"StockPulse/pkg/logger"
)

// MinTrainingExamples is the minimum number of sliding windows required to
// fit a model.
const MinTrainingExamples = 10

// TrainResult bundles everything a training run produces.
type TrainResult struct {
	Model        *Model
	Scaler       *RobustScaler
	FeatureNames []string
	Report       models.TrainingReport
}

// Trainer fits the sequence model on an engineered feature frame.
type Trainer struct {
	seqLen  int
	minRows int
	seed    int64
	cfg     config.TrainingConfig
	log     *logger.Logger
}

func NewTrainer(fc config.ForecastConfig, log *logger.Logger) *Trainer {
	return &Trainer{
		seqLen:  fc.SequenceLength,
		minRows: fc.MinRows,
		seed:    fc.Seed,
		cfg:     fc.Training,
		log:     log,
	}
}

// Fit scales the selected columns, builds sliding windows targeting the next
// scaled close, and trains with early stopping and plateau LR decay. The
// best validation weights are restored before returning.
func (t *Trainer) Fit(ctx context.Context, frame *features.Frame, featureNames []string) (*TrainResult, error) {
	closeIdx := -1
	for i, n := range featureNames {
		if n == "close" {
			closeIdx = i
		}
	}
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: close column missing from feature set", models.ErrScaling)
	}

	raw, err := frame.Matrix(featureNames)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrScaling, err)
	}
	if len(raw) < t.seqLen+MinTrainingExamples {
		return nil, fmt.Errorf("%w: %d rows, need %d for %d windows",
			models.ErrInsufficientData, len(raw), t.seqLen+MinTrainingExamples, MinTrainingExamples)
	}
	if len(raw) < t.minRows {
		return nil, fmt.Errorf("%w: %d rows after engineering, need %d",
			models.ErrInsufficientData, len(raw), t.minRows)
	}

	scaler := NewRobustScaler()
	scaled, err := scaler.FitTransform(raw, featureNames)
	if err != nil {
		return nil, err
	}

	n := len(scaled) - t.seqLen
	xs := make([][][]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = scaled[i : i+t.seqLen]
		ys[i] = scaled[i+t.seqLen][closeIdx]
	}

	if constant(ys) {
		return nil, fmt.Errorf("%w: scaled close has zero variance over %d targets", models.ErrConstantTarget, n)
	}

	nVal := int(float64(n) * t.cfg.ValSplit)
	if nVal < 1 {
		nVal = 1
	}
	nTrain := n - nVal

	model := NewModel(len(featureNames), t.seed)
	opt := newAdam(t.cfg.LearningRate)
	shuffleRng := rand.New(rand.NewSource(t.seed + 1))

	order := make([]int, nTrain)
	for i := range order {
		order[i] = i
	}

	bestVal := math.Inf(1)
	var bestWeights [][]float64
	sinceBest := 0
	sinceLRDrop := 0
	epochs := 0
	finalTrain := math.NaN()
	start := time.Now()

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		epochs = epoch + 1

		shuffleRng.Shuffle(nTrain, func(i, j int) { order[i], order[j] = order[j], order[i] })

		var trainLoss float64
		for b := 0; b < nTrain; b += t.cfg.BatchSize {
			end := b + t.cfg.BatchSize
			if end > nTrain {
				end = nTrain
			}
			model.zeroGrad()
			for _, i := range order[b:end] {
				yhat, cache := model.forward(xs[i], true)
				e := yhat - ys[i]
				trainLoss += huber(e)
				model.backward(cache, huberGrad(e))
			}
			opt.update(model.params(), 1/float64(end-b))
		}
		trainLoss /= float64(nTrain)
		finalTrain = trainLoss

		var valLoss float64
		for i := nTrain; i < n; i++ {
			yhat, _ := model.forward(xs[i], false)
			valLoss += huber(yhat - ys[i])
		}
		valLoss /= float64(nVal)

		if valLoss < bestVal {
			bestVal = valLoss
			bestWeights = snapshot(model.params())
			sinceBest = 0
			sinceLRDrop = 0
		} else {
			sinceBest++
			sinceLRDrop++
		}

		if sinceLRDrop >= t.cfg.LRPatience && opt.lr > t.cfg.MinLR {
			opt.lr *= t.cfg.LRFactor
			if opt.lr < t.cfg.MinLR {
				opt.lr = t.cfg.MinLR
			}
			sinceLRDrop = 0
			t.log.Debug("learning rate reduced",
				logger.Float64("lr", opt.lr),
				logger.Int("epoch", epochs))
		}

		if sinceBest >= t.cfg.EarlyPatience {
			t.log.Info("early stopping",
				logger.Int("epoch", epochs),
				logger.Float64("best_val_loss", bestVal))
			break
		}
	}

	if bestWeights != nil {
		restore(model.params(), bestWeights)
	}

	return &TrainResult{
		Model:        model,
		Scaler:       scaler,
		FeatureNames: append([]string(nil), featureNames...),
		Report: models.TrainingReport{
			Epochs:         epochs,
			BestValLoss:    bestVal,
			FinalTrainLoss: finalTrain,
			Samples:        n,
			Features:       len(featureNames),
			Duration:       time.Since(start),
			TrainedAt:      time.Now().UTC(),
		},
	}, nil
}

// huber is the Huber loss with delta 1.
func huber(e float64) float64 {
	a := math.Abs(e)
	if a <= 1 {
		return 0.5 * e * e
	}
	return a - 0.5
}

func huberGrad(e float64) float64 {
	if e > 1 {
		return 1
	}
	if e < -1 {
		return -1
	}
	return e
}

func constant(ys []float64) bool {
	for _, y := range ys[1:] {
		if y != ys[0] {
			return false
		}
	}
	return true
}

func snapshot(params []*tensor) [][]float64 {
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = append([]float64(nil), p.W...)
	}
	return out
}

func restore(params []*tensor, weights [][]float64) {
	for i, p := range params {
		copy(p.W, weights[i])
	}
}
