package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lattice-ml/lattice/internal/graph"
)

// graphFile is the YAML description of a feature extraction graph.
type graphFile struct {
	Tensors []tensorSpec       `yaml:"tensors"`
	Steps   []stepSpec         `yaml:"steps"`
	Feeds   map[string][]int32 `yaml:"feeds"`
}

type tensorSpec struct {
	Name   string    `yaml:"name"`
	Type   string    `yaml:"type"`
	Shape  []int     `yaml:"shape"`
	Data   []float64 `yaml:"data"`
	Input  bool      `yaml:"input"`
	Output bool      `yaml:"output"`
}

type stepSpec struct {
	Name    string   `yaml:"name"`
	Op      string   `yaml:"op"`
	Inputs  []string `yaml:"inputs"`
	Outputs []string `yaml:"outputs"`
}

// loadGraphFile decodes a graph description from a YAML file.
func loadGraphFile(path string) (*graphFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var gf graphFile
	if err := yaml.Unmarshal(raw, &gf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &gf, nil
}

// build constructs the graph described by the file.
func (gf *graphFile) build() (*graph.Graph, error) {
	g := graph.New()
	for _, ts := range gf.Tensors {
		typ, err := parseType(ts.Type)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", ts.Name, err)
		}
		t := g.NewTensor(ts.Name, typ, graph.Shape(ts.Shape))
		if ts.Data != nil {
			payload, err := encodePayload(typ, ts.Data)
			if err != nil {
				return nil, fmt.Errorf("tensor %q: %w", ts.Name, err)
			}
			t.SetData(payload)
		}
		if ts.Input {
			t.MarkInput()
		}
		if ts.Output {
			t.MarkOutput()
		}
	}
	for _, ss := range gf.Steps {
		inputs, err := resolve(g, ss.Inputs)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", ss.Name, err)
		}
		outputs, err := resolve(g, ss.Outputs)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", ss.Name, err)
		}
		g.NewStep(ss.Name, ss.Op, inputs, outputs)
	}
	return g, nil
}

func resolve(g *graph.Graph, names []string) ([]*graph.Tensor, error) {
	tensors := make([]*graph.Tensor, len(names))
	for i, name := range names {
		t := g.Var(name)
		if t == nil {
			return nil, fmt.Errorf("unknown tensor %q", name)
		}
		tensors[i] = t
	}
	return tensors, nil
}

func parseType(name string) (graph.Type, error) {
	switch name {
	case "float32":
		return graph.Float32, nil
	case "float64":
		return graph.Float64, nil
	case "int32":
		return graph.Int32, nil
	case "int64":
		return graph.Int64, nil
	case "uint8":
		return graph.Uint8, nil
	default:
		return 0, fmt.Errorf("unknown type %q", name)
	}
}

func encodePayload(typ graph.Type, values []float64) ([]byte, error) {
	buf := make([]byte, len(values)*typ.Size())
	for i, v := range values {
		switch typ {
		case graph.Float32:
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
		case graph.Float64:
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		case graph.Int32:
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(v)))
		case graph.Int64:
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(int64(v)))
		case graph.Uint8:
			buf[i] = uint8(v)
		default:
			return nil, fmt.Errorf("cannot encode payload of type %s", typ)
		}
	}
	return buf, nil
}
