package querycache

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DependencyGraph is the static mapping from a logical table to the full
// set of tables whose cached entries go stale when it changes. It is built
// once at load time and read-only afterwards; changing it means shipping
// new configuration, not runtime mutation.
type DependencyGraph struct {
	deps map[string][]string
}

// graphFile is the on-disk YAML shape:
//
//	dependencies:
//	  financial_data: [companies, valuations]
type graphFile struct {
	Dependencies map[string][]string `yaml:"dependencies"`
}

// NewDependencyGraph builds a graph from a table -> dependent-tables map.
// The graph is made reflexive: a table always depends on itself, whether or
// not the input says so.
func NewDependencyGraph(deps map[string][]string) *DependencyGraph {
	normalized := make(map[string][]string, len(deps))
	for table, related := range deps {
		normalized[table] = dedupeSorted(append([]string{table}, related...))
	}
	return &DependencyGraph{deps: normalized}
}

// DefaultGraph returns the dependency graph for the finance domain:
// valuations are derived from company financials, portfolio rollups from
// their transactions, and billing views from subscriptions.
func DefaultGraph() *DependencyGraph {
	return NewDependencyGraph(map[string][]string{
		"companies":        {"valuations"},
		"financial_data":   {"companies", "valuations"},
		"valuations":       {},
		"portfolios":       {"portfolio_assets"},
		"portfolio_assets": {"portfolios"},
		"transactions":     {"portfolios", "portfolio_assets"},
		"subscriptions":    {"users"},
		"users":            {},
	})
}

// LoadGraph reads a dependency graph from a YAML file.
func LoadGraph(path string) (*DependencyGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("querycache: reading graph config: %w", err)
	}
	return ParseGraph(data)
}

// ParseGraph builds a dependency graph from YAML bytes.
func ParseGraph(data []byte) (*DependencyGraph, error) {
	var file graphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("querycache: parsing graph config: %w", err)
	}
	if len(file.Dependencies) == 0 {
		return nil, fmt.Errorf("querycache: graph config declares no dependencies")
	}
	return NewDependencyGraph(file.Dependencies), nil
}

// Expand unions the dependency sets of every input table, one level deep.
// Dependency sets are defined pre-computed and inclusive of related tables
// by construction, so no transitive closure is taken. Tables absent from
// the graph expand to themselves.
func (g *DependencyGraph) Expand(tables []string) []string {
	var out []string
	for _, table := range tables {
		if related, ok := g.deps[table]; ok {
			out = append(out, related...)
			continue
		}
		out = append(out, table)
	}
	return dedupeSorted(out)
}

// DependenciesOf returns the configured dependency set for a single table,
// including the table itself. Unknown tables map to themselves.
func (g *DependencyGraph) DependenciesOf(table string) []string {
	if related, ok := g.deps[table]; ok {
		return append([]string(nil), related...)
	}
	return []string{table}
}

// Tables lists every table the graph knows about.
func (g *DependencyGraph) Tables() []string {
	out := make([]string, 0, len(g.deps))
	for table := range g.deps {
		out = append(out, table)
	}
	return dedupeSorted(out)
}
