package policies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeu5/locomotion-rl/types"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

var ErrObservationSize = errors.New("observation size does not match the policy")

// Checkpoint is the on-disk form of a linear policy. Weights has one row per
// action component.
type Checkpoint struct {
	Name    string      `json:"name" yaml:"name"`
	Weights [][]float64 `json:"weights" yaml:"weights"`
	Bias    []float64   `json:"bias" yaml:"bias"`
}

// Linear computes tanh(W obs + b), so every component lands in (-1, 1)
type Linear struct {
	name string
	w    *mat.Dense
	b    *mat.VecDense
}

var _ types.Policy = &Linear{}

func NewLinear(cp Checkpoint) (*Linear, error) {
	rows := len(cp.Weights)
	if rows == 0 || len(cp.Weights[0]) == 0 {
		return nil, fmt.Errorf("checkpoint %q: empty weights", cp.Name)
	}
	cols := len(cp.Weights[0])
	data := make([]float64, 0, rows*cols)
	for i, row := range cp.Weights {
		if len(row) != cols {
			return nil, fmt.Errorf("checkpoint %q: row %d has %d weights, want %d", cp.Name, i, len(row), cols)
		}
		data = append(data, row...)
	}
	bias := cp.Bias
	if bias == nil {
		bias = make([]float64, rows)
	}
	if len(bias) != rows {
		return nil, fmt.Errorf("checkpoint %q: %d biases for %d outputs", cp.Name, len(bias), rows)
	}
	for _, v := range append(append([]float64(nil), data...), bias...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("checkpoint %q: non-finite parameter", cp.Name)
		}
	}
	return &Linear{
		name: cp.Name,
		w:    mat.NewDense(rows, cols, data),
		b:    mat.NewVecDense(rows, append([]float64(nil), bias...)),
	}, nil
}

// LoadLinear reads a checkpoint, as JSON when the file ends in .json and as
// YAML otherwise
func LoadLinear(path string) (*Linear, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	var cp Checkpoint
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(bs, &cp)
	} else {
		err = yaml.Unmarshal(bs, &cp)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	if cp.Name == "" {
		cp.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return NewLinear(cp)
}

func (l *Linear) Name() string {
	return l.name
}

// Sizes returns the observation and action lengths
func (l *Linear) Sizes() (int, int) {
	r, c := l.w.Dims()
	return c, r
}

func (l *Linear) Act(ctx context.Context, observation []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obsSize, actSize := l.Sizes()
	if len(observation) != obsSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrObservationSize, len(observation), obsSize)
	}
	out := mat.NewVecDense(actSize, nil)
	out.MulVec(l.w, mat.NewVecDense(obsSize, append([]float64(nil), observation...)))
	out.AddVec(out, l.b)
	action := make([]float64, actSize)
	for i := range action {
		action[i] = math.Tanh(out.AtVec(i))
	}
	return action, nil
}

// Checkpoint returns a copy of the parameters
func (l *Linear) Checkpoint() Checkpoint {
	r, c := l.w.Dims()
	cp := Checkpoint{Name: l.name, Weights: make([][]float64, r), Bias: make([]float64, r)}
	for i := 0; i < r; i++ {
		cp.Weights[i] = mat.Row(make([]float64, c), i, l.w)
		cp.Bias[i] = l.b.AtVec(i)
	}
	return cp
}

// Save writes the checkpoint in the format picked by the file extension
func (l *Linear) Save(path string) error {
	var (
		bs  []byte
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		bs, err = json.Marshal(l.Checkpoint())
	} else {
		bs, err = yaml.Marshal(l.Checkpoint())
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, bs, 0644)
}
