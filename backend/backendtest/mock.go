// Package backendtest provides a scriptable backend.Graph double used by
// this repository's own tests, standing in for the native tensor plugin.
package backendtest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/llamaedge/chat-core/backend"
)

// Step is one scripted outcome of a ComputeSingle call.
type Step struct {
	// Token is the output bytes to serve from SlotPrompt after this step,
	// used for incremental (ComputeSingle) generation.
	Token []byte
	// Err is the terminal condition this step reports, e.g.
	// backend.ErrEndOfSequence. Nil means "ok, token produced".
	Err error
}

// Mock is a scriptable backend.Graph: ComputeSingle walks Steps in order
// and reports ErrEndOfSequence once they are exhausted; Compute returns
// OneShotErr. TokenInfo is served on every SlotMetadata output read.
type Mock struct {
	GraphName string
	Meta      backend.Metadata
	TokenInfo backend.TokenInfo

	// Steps scripts ComputeSingle. Output reads SlotPrompt return Steps[i].Token.
	Steps []Step
	step  int

	// OneShotOutput/OneShotErr scripts Compute (the blocking one-call path).
	OneShotOutput []byte
	OneShotErr    error

	FinishSingleCalls int
	SetMetadataCalls  int
	lastInput         map[int][]byte
}

// NewMock returns a Mock ready to script.
func NewMock(name string, meta backend.Metadata) *Mock {
	return &Mock{GraphName: name, Meta: meta, lastInput: map[int][]byte{}}
}

func (m *Mock) Name() string              { return m.GraphName }
func (m *Mock) Metadata() backend.Metadata { return m.Meta }

func (m *Mock) SetMetadata(meta backend.Metadata) error {
	m.Meta = meta
	m.SetMetadataCalls++

	return nil
}

func (m *Mock) SetInput(slot int, data []byte) error {
	m.lastInput[slot] = data
	return nil
}

func (m *Mock) GetOutput(slot int) ([]byte, error) {
	switch slot {
	case backend.SlotPrompt:
		return m.OneShotOutput, nil
	case backend.SlotMetadata:
		return json.Marshal(m.TokenInfo)
	default:
		return nil, fmt.Errorf("mock: unknown output slot %d", slot)
	}
}

func (m *Mock) GetOutputSingle(slot int) ([]byte, error) {
	switch slot {
	case backend.SlotPrompt:
		if m.step == 0 || m.step > len(m.Steps) {
			return nil, errors.New("mock: no current step output")
		}

		return m.Steps[m.step-1].Token, nil
	case backend.SlotMetadata:
		return json.Marshal(m.TokenInfo)
	default:
		return nil, fmt.Errorf("mock: unknown output slot %d", slot)
	}
}

func (m *Mock) Compute() error { return m.OneShotErr }

func (m *Mock) ComputeSingle() error {
	if m.step >= len(m.Steps) {
		return backend.ErrEndOfSequence
	}

	s := m.Steps[m.step]
	m.step++

	return s.Err
}

func (m *Mock) FinishSingle() error {
	m.FinishSingleCalls++
	return nil
}
