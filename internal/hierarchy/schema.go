package hierarchy

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// #region schema
// Node is one element of the questionnaire tree. Parent is empty for clusters.
type Node struct {
	ID     string  `yaml:"id" json:"id" validate:"required"`
	Parent string  `yaml:"parent" json:"parent"`
	Weight float64 `yaml:"weight" json:"weight" validate:"gte=0"`
}

// Schema is the questionnaire tree: questions → dimensions → areas → clusters.
type Schema struct {
	Version    string `yaml:"version" json:"version" validate:"required"`
	Questions  []Node `yaml:"questions" json:"questions" validate:"required,dive"`
	Dimensions []Node `yaml:"dimensions" json:"dimensions" validate:"required,dive"`
	Areas      []Node `yaml:"areas" json:"areas" validate:"required,dive"`
	Clusters   []Node `yaml:"clusters" json:"clusters" validate:"required,dive"`

	nodes    map[Level]map[string]Node
	children map[Level]map[string][]string
}

var validate = validator.New()

// DefaultSchema builds the canonical questionnaire: 10 policy areas × 6
// dimensions × 5 questions, grouped into 4 clusters.
func DefaultSchema() *Schema {
	s := &Schema{Version: "canonical-300"}
	clusterOf := map[int]string{
		1: "CL01", 2: "CL01", 3: "CL01",
		4: "CL02", 5: "CL02", 6: "CL02",
		7: "CL03", 8: "CL03",
		9: "CL04", 10: "CL04",
	}
	for c := 1; c <= 4; c++ {
		s.Clusters = append(s.Clusters, Node{ID: fmt.Sprintf("CL%02d", c), Weight: 1})
	}
	q := 0
	for a := 1; a <= 10; a++ {
		area := fmt.Sprintf("PA%02d", a)
		s.Areas = append(s.Areas, Node{ID: area, Parent: clusterOf[a], Weight: 1})
		for d := 1; d <= 6; d++ {
			dim := fmt.Sprintf("%s-DIM%02d", area, d)
			s.Dimensions = append(s.Dimensions, Node{ID: dim, Parent: area, Weight: 1})
			for k := 0; k < 5; k++ {
				q++
				s.Questions = append(s.Questions, Node{ID: fmt.Sprintf("Q%03d", q), Parent: dim, Weight: 1})
			}
		}
	}
	if err := s.index(); err != nil {
		panic(fmt.Sprintf("canonical schema: %v", err))
	}
	return s
}

// LoadSchema reads and indexes a YAML schema.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(data)
}

// ParseSchema decodes, validates and indexes a YAML schema.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("validate schema: %w", err)
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return &s, nil
}

// index checks ids are unique and every parent exists, then builds the
// parent → children lookup with children sorted.
func (s *Schema) index() error {
	s.nodes = make(map[Level]map[string]Node)
	s.children = make(map[Level]map[string][]string)

	tiers := []struct {
		level  Level
		nodes  []Node
		parent Level
	}{
		{LevelCluster, s.Clusters, LevelMacro},
		{LevelArea, s.Areas, LevelCluster},
		{LevelDimension, s.Dimensions, LevelArea},
		{LevelMicro, s.Questions, LevelDimension},
	}
	for _, t := range tiers {
		byID := make(map[string]Node, len(t.nodes))
		kids := make(map[string][]string)
		for _, n := range t.nodes {
			if _, dup := byID[n.ID]; dup {
				return fmt.Errorf("index schema: duplicate %s id %s", t.level, n.ID)
			}
			parent := n.Parent
			if t.level == LevelCluster {
				parent = MacroID
			} else if _, ok := s.nodes[t.parent][parent]; !ok {
				return fmt.Errorf("index schema: %s %s has unknown parent %q", t.level, n.ID, n.Parent)
			}
			n.Parent = parent
			byID[n.ID] = n
			kids[parent] = append(kids[parent], n.ID)
		}
		for _, ids := range kids {
			sort.Strings(ids)
		}
		s.nodes[t.level] = byID
		s.children[t.level] = kids
	}
	s.nodes[LevelMacro] = map[string]Node{MacroID: {ID: MacroID, Weight: 1}}

	for _, t := range tiers[:3] {
		for _, n := range t.nodes {
			if len(s.children[childLevel(t.level)][n.ID]) == 0 {
				return fmt.Errorf("index schema: %s %s has no children", t.level, n.ID)
			}
		}
	}
	return nil
}

// Groups returns the sorted group ids produced at level.
func (s *Schema) Groups(level Level) []string {
	ids := make([]string, 0, len(s.nodes[level]))
	for id := range s.nodes[level] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Children returns the expected child ids of a group at level, sorted.
func (s *Schema) Children(level Level, groupID string) []string {
	return append([]string(nil), s.children[childLevel(level)][groupID]...)
}

// Parent returns the parent group of id at level.
func (s *Schema) Parent(level Level, id string) (string, bool) {
	n, ok := s.nodes[level][id]
	return n.Parent, ok
}

// Weight returns the base weight of id at level.
func (s *Schema) Weight(level Level, id string) float64 {
	return s.nodes[level][id].Weight
}

// Len returns the number of nodes at level.
func (s *Schema) Len(level Level) int {
	return len(s.nodes[level])
}

func childLevel(level Level) Level {
	switch level {
	case LevelDimension:
		return LevelMicro
	case LevelArea:
		return LevelDimension
	case LevelCluster:
		return LevelArea
	case LevelMacro:
		return LevelCluster
	default:
		return ""
	}
}

// #endregion schema
