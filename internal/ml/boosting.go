package ml

import (
	"encoding/json"
	"fmt"
	"math"
)

const typeBoosting = "gradient_boosting"

// Boosting is an additive ensemble of binary regression trees whose summed
// output is a log-odds: p = sigmoid(init + learningRate * Σ tree(x)).
type Boosting struct {
	width        int
	init         float64
	learningRate float64
	trees        []tree
}

type tree struct {
	nodes []node
}

// node is a split when Leaf is false. Samples with x[Feature] <= Threshold
// go Left, the rest go Right.
type node struct {
	Leaf      bool    `json:"leaf"`
	Value     float64 `json:"value"`
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
}

type boostingParams struct {
	NFeatures    int               `json:"n_features"`
	Init         float64           `json:"init"`
	LearningRate float64           `json:"learning_rate"`
	Trees        []json.RawMessage `json:"trees"`
}

type treeParams struct {
	Nodes []node `json:"nodes"`
}

func decodeBoosting(raw json.RawMessage) (Classifier, error) {
	var p boostingParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decode gradient boosting: %v", ErrArtifact, err)
	}
	if p.NFeatures <= 0 {
		return nil, fmt.Errorf("%w: gradient boosting needs n_features > 0", ErrArtifact)
	}
	if len(p.Trees) == 0 {
		return nil, fmt.Errorf("%w: gradient boosting has no trees", ErrArtifact)
	}
	if !isFinite(p.Init) || !isFinite(p.LearningRate) || p.LearningRate <= 0 {
		return nil, fmt.Errorf("%w: invalid init or learning rate", ErrArtifact)
	}

	b := &Boosting{
		width:        p.NFeatures,
		init:         p.Init,
		learningRate: p.LearningRate,
		trees:        make([]tree, len(p.Trees)),
	}
	for i, rawTree := range p.Trees {
		var tp treeParams
		if err := json.Unmarshal(rawTree, &tp); err != nil {
			return nil, fmt.Errorf("%w: decode tree %d: %v", ErrArtifact, i, err)
		}
		if err := validateTree(tp.Nodes, p.NFeatures); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrArtifact, i, err)
		}
		b.trees[i] = tree{nodes: tp.Nodes}
	}
	return b, nil
}

// validateTree requires children to follow their parent, which rules out
// cycles and guarantees every walk ends on a leaf.
func validateTree(nodes []node, width int) error {
	if len(nodes) == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, n := range nodes {
		if n.Leaf {
			if !isFinite(n.Value) {
				return fmt.Errorf("leaf %d value is not finite", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d outside [0, %d)", i, n.Feature, width)
		}
		if !isFinite(n.Threshold) {
			return fmt.Errorf("node %d threshold is not finite", i)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(nodes) {
				return fmt.Errorf("node %d has invalid child %d", i, child)
			}
		}
	}
	return nil
}

func (b *Boosting) Type() string    { return typeBoosting }
func (b *Boosting) InputWidth() int { return b.width }

func (b *Boosting) Score(x []float64) (float64, error) {
	if err := checkShape(b, x); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, t := range b.trees {
		sum += t.predict(x)
	}
	return sigmoid(b.init + b.learningRate*sum), nil
}

func (t tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
