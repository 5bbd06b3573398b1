// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Example is one training pair: an input feature vector and the mapped
// parameter values it should produce.
type Example struct {
	Input  []float64 `json:"input"`
	Output []float64 `json:"output"`
}

// Model is an external regression or classification model.
type Model interface {
	Train(ctx context.Context, examples []Example) error
	Run(ctx context.Context, input []float64) ([]float64, error)
}

var ErrNotTrained = errors.New("control: model not trained")

// Learner records examples against a controller's mapped parameters,
// trains a Model on them, and feeds predictions back as parameter
// updates.
type Learner struct {
	c     *Controller
	model Model

	mu       sync.Mutex
	examples []Example
	trained  bool
}

// NewLearner returns a learner driving c with m.
func NewLearner(c *Controller, m Model) *Learner {
	return &Learner{c: c, model: m}
}

// Record stores input paired with the current mapped outputs.
func (l *Learner) Record(input []float64) Example {
	ex := Example{
		Input:  append([]float64(nil), input...),
		Output: l.c.MappedOutputs(),
	}
	l.mu.Lock()
	l.examples = append(l.examples, ex)
	l.mu.Unlock()
	return ex
}

// Examples returns a copy of the recorded examples.
func (l *Learner) Examples() []Example {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Example(nil), l.examples...)
}

// Clear drops every recorded example and the trained state.
func (l *Learner) Clear() {
	l.mu.Lock()
	l.examples = nil
	l.trained = false
	l.mu.Unlock()
}

// Train fits the model on the recorded examples.
func (l *Learner) Train(ctx context.Context) error {
	examples := l.Examples()
	if len(examples) == 0 {
		return fmt.Errorf("control: no examples recorded")
	}
	if err := l.model.Train(ctx, examples); err != nil {
		return fmt.Errorf("training on %d examples: %w", len(examples), err)
	}
	l.mu.Lock()
	l.trained = true
	l.mu.Unlock()
	return nil
}

// Run predicts mapped values for input and applies them.
func (l *Learner) Run(ctx context.Context, input []float64) error {
	l.mu.Lock()
	trained := l.trained
	l.mu.Unlock()
	if !trained {
		return ErrNotTrained
	}
	out, err := l.model.Run(ctx, input)
	if err != nil {
		return fmt.Errorf("running model: %w", err)
	}
	return l.c.ApplyMapped(ctx, out)
}
