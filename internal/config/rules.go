package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mtfbot/internal/cascade"
	"mtfbot/internal/condition"
)

// RuleNode is one node of the declarative rule tree. In YAML it is either a
// bare condition name, a {name, params} mapping, or an all_of/any_of
// combinator over child nodes.
type RuleNode struct {
	Name   string
	Params map[string]any
	AllOf  []RuleNode
	AnyOf  []RuleNode
}

// UnmarshalYAML accepts the three declarative shapes.
func (n *RuleNode) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&n.Name)
	case yaml.MappingNode:
		var raw struct {
			Name   string         `yaml:"name"`
			Params map[string]any `yaml:"params"`
			AllOf  []RuleNode     `yaml:"all_of"`
			AnyOf  []RuleNode     `yaml:"any_of"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		n.Name = raw.Name
		n.Params = raw.Params
		n.AllOf = raw.AllOf
		n.AnyOf = raw.AnyOf
		if n.Name == "" && len(n.AllOf) == 0 && len(n.AnyOf) == 0 {
			return fmt.Errorf("rule node needs a name, all_of, or any_of (line %d)", value.Line)
		}
		if n.Name != "" && (len(n.AllOf) > 0 || len(n.AnyOf) > 0) {
			return fmt.Errorf("rule node %q cannot also be a combinator (line %d)", n.Name, value.Line)
		}
		return nil
	default:
		return fmt.Errorf("rule node must be a string or mapping (line %d)", value.Line)
	}
}

// compile lowers the declarative node into an evaluable rule tree.
func (n RuleNode) compile() (condition.Node, error) {
	switch {
	case n.Name != "":
		return condition.Leaf{Name: n.Name, Overrides: n.Params}, nil
	case len(n.AllOf) > 0:
		children, err := compileAll(n.AllOf)
		if err != nil {
			return nil, err
		}
		return condition.AllOf{Children: children}, nil
	case len(n.AnyOf) > 0:
		children, err := compileAll(n.AnyOf)
		if err != nil {
			return nil, err
		}
		return condition.AnyOf{Children: children}, nil
	default:
		return nil, fmt.Errorf("empty rule node")
	}
}

func compileAll(nodes []RuleNode) ([]condition.Node, error) {
	children := make([]condition.Node, 0, len(nodes))
	for _, child := range nodes {
		compiled, err := child.compile()
		if err != nil {
			return nil, err
		}
		children = append(children, compiled)
	}
	return children, nil
}

// SideRules lists the per-side rule nodes for one timeframe. A list is an
// implicit all_of.
type SideRules struct {
	Long  []RuleNode `yaml:"long"`
	Short []RuleNode `yaml:"short"`
}

// RulesFile is the declarative rules document: the timeframe cascade split
// plus per-timeframe, per-side condition trees.
type RulesFile struct {
	ContextTimeframes   []string             `yaml:"context_timeframes"`
	ExecutionTimeframes []string             `yaml:"execution_timeframes"`
	Timeframes          map[string]SideRules `yaml:"timeframes"`
}

// LoadRules reads and compiles a rules file into a cascade config. Every
// referenced condition name is validated against reg; unknown names are
// rejected here, at load time, not mid-batch.
func LoadRules(path string, reg *condition.Registry) (cascade.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return cascade.Config{}, fmt.Errorf("open rules: %w", err)
	}
	defer file.Close()

	var doc RulesFile
	if err := yaml.NewDecoder(file).Decode(&doc); err != nil {
		return cascade.Config{}, fmt.Errorf("decode rules yaml: %w", err)
	}
	return doc.Compile(reg)
}

// Compile validates and lowers the document into a cascade config.
func (doc RulesFile) Compile(reg *condition.Registry) (cascade.Config, error) {
	if len(doc.ExecutionTimeframes) == 0 {
		return cascade.Config{}, fmt.Errorf("rules: at least one execution timeframe required")
	}

	cfg := cascade.Config{
		ContextTimeframes:   doc.ContextTimeframes,
		ExecutionTimeframes: doc.ExecutionTimeframes,
		Rules:               make(map[string]cascade.Rules, len(doc.Timeframes)),
	}

	for _, tf := range append(append([]string{}, doc.ContextTimeframes...), doc.ExecutionTimeframes...) {
		if _, ok := doc.Timeframes[tf]; !ok {
			return cascade.Config{}, fmt.Errorf("rules: timeframe %s listed but has no rules", tf)
		}
	}

	for tf, sides := range doc.Timeframes {
		long, err := compileSide(sides.Long)
		if err != nil {
			return cascade.Config{}, fmt.Errorf("rules %s long: %w", tf, err)
		}
		short, err := compileSide(sides.Short)
		if err != nil {
			return cascade.Config{}, fmt.Errorf("rules %s short: %w", tf, err)
		}
		if reg != nil {
			if long != nil {
				if err := condition.Validate(reg, long); err != nil {
					return cascade.Config{}, fmt.Errorf("rules %s long: %w", tf, err)
				}
			}
			if short != nil {
				if err := condition.Validate(reg, short); err != nil {
					return cascade.Config{}, fmt.Errorf("rules %s short: %w", tf, err)
				}
			}
		}
		cfg.Rules[tf] = cascade.Rules{Long: long, Short: short}
	}
	return cfg, nil
}

func compileSide(nodes []RuleNode) (condition.Node, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	children, err := compileAll(nodes)
	if err != nil {
		return nil, err
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return condition.AllOf{Children: children}, nil
}
