package querycache

import (
	"regexp"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
	"go.uber.org/zap"
)

// Kind is the category a data-access operation falls into. It is produced
// once at the boundary by the Classifier; downstream code switches on the
// tag instead of re-inspecting descriptor text.
type Kind int

const (
	// KindUnknown marks operations the classifier could not categorize.
	// Unknown reads are not cacheable; unknown writes invalidate nothing.
	KindUnknown Kind = iota

	// KindRead marks operations that only read data.
	KindRead

	// KindWrite marks operations that mutate data.
	KindWrite
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Operation is the classified form of a data-access descriptor.
type Operation struct {
	Kind   Kind
	Tables []string
}

// readVerbs and writeVerbs categorize the leading verb of a method-chain
// descriptor or the first keyword of a raw statement. Anything else is
// KindUnknown; the classifier never guesses.
var (
	readVerbs = map[string]struct{}{
		"find": {}, "findmany": {}, "findunique": {}, "findfirst": {},
		"fetch": {}, "get": {}, "count": {}, "aggregate": {},
		"groupby": {}, "select": {}, "list": {}, "with": {},
	}
	writeVerbs = map[string]struct{}{
		"create": {}, "createmany": {}, "update": {}, "updatemany": {},
		"upsert": {}, "delete": {}, "deletemany": {}, "insert": {},
		"replace": {},
	}
)

// tablePattern extracts one raw identifier per match. SQL-extracted
// identifiers are already table names; method-chain identifiers are model
// names and go through the model-to-table resolution.
type tablePattern struct {
	re      *regexp.Regexp
	isModel bool
}

// tablePatterns is the ordered matcher list applied to every descriptor.
// Multiple patterns may hit the same descriptor (a statement with both FROM
// and JOIN); results are deduplicated. This is a heuristic, not a parser.
var tablePatterns = []tablePattern{
	{re: regexp.MustCompile(`(?i)\bfrom\s+"?([A-Za-z_][A-Za-z0-9_]*)"?`)},
	{re: regexp.MustCompile(`(?i)\bjoin\s+"?([A-Za-z_][A-Za-z0-9_]*)"?`)},
	{re: regexp.MustCompile(`(?i)\binsert\s+into\s+"?([A-Za-z_][A-Za-z0-9_]*)"?`)},
	{re: regexp.MustCompile(`(?i)\bupdate\s+"?([A-Za-z_][A-Za-z0-9_]*)"?\s+set\b`)},
	{re: regexp.MustCompile(`(?i)\bdelete\s+from\s+"?([A-Za-z_][A-Za-z0-9_]*)"?`)},
	{re: regexp.MustCompile(`(?:^|[\s.(])([A-Za-z_][A-Za-z0-9_]*)\.(?:find\w*|fetch\w*|get\w*|count|aggregate|groupBy|select|list|create\w*|update\w*|upsert\w*|delete\w*|insert\w*)\s*\(`), isModel: true},
}

// methodVerbPattern pulls the trailing verb out of a method-chain descriptor
// such as "financialData.updateMany({...})".
var methodVerbPattern = regexp.MustCompile(`\.([A-Za-z]+)\s*\(`)

// ClassifierConfig configures descriptor classification.
type ClassifierConfig struct {
	// ModelTables maps model identifiers to canonical table names. It
	// takes precedence over the snake_case+pluralize fallback and is the
	// place to pin irregular names (financialData -> financial_data).
	ModelTables map[string]string `yaml:"model_tables"`

	// MemoCapacity bounds the classification memo. Descriptors repeat
	// heavily, so memoizing avoids re-running the matcher list.
	MemoCapacity int `yaml:"memo_capacity"`

	// MemoTTL expires memoized classifications.
	MemoTTL time.Duration `yaml:"memo_ttl"`
}

// DefaultClassifierConfig returns a ClassifierConfig with the finance-domain
// model mapping and a bounded memo.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ModelTables: map[string]string{
			"company":        "companies",
			"financialData":  "financial_data",
			"portfolio":      "portfolios",
			"portfolioAsset": "portfolio_assets",
			"transaction":    "transactions",
			"subscription":   "subscriptions",
			"user":           "users",
			"valuation":      "valuations",
		},
		MemoCapacity: 2048,
		MemoTTL:      time.Hour,
	}
}

// Classifier categorizes data-access descriptors into reads and writes and
// extracts the logical tables they touch.
type Classifier struct {
	modelTables map[string]string
	memo        *sturdyc.Client[Operation]
	logger      *zap.Logger
}

// NewClassifier creates a Classifier. Zero-value config fields fall back to
// the defaults.
func NewClassifier(cfg ClassifierConfig, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	defaults := DefaultClassifierConfig()
	if cfg.ModelTables == nil {
		cfg.ModelTables = defaults.ModelTables
	}
	if cfg.MemoCapacity <= 0 {
		cfg.MemoCapacity = defaults.MemoCapacity
	}
	if cfg.MemoTTL <= 0 {
		cfg.MemoTTL = defaults.MemoTTL
	}

	return &Classifier{
		modelTables: cfg.ModelTables,
		memo:        sturdyc.New[Operation](cfg.MemoCapacity, 64, cfg.MemoTTL, 10),
		logger:      logger.Named("classifier"),
	}
}

// Classify determines the kind of the operation the descriptor represents
// and the set of logical tables it references. Identical descriptors hit
// the memo.
func (c *Classifier) Classify(descriptor string) Operation {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return Operation{Kind: KindUnknown}
	}

	if op, ok := c.memo.Get(descriptor); ok {
		return op
	}

	op := Operation{
		Kind:   c.classifyKind(descriptor),
		Tables: c.extractTables(descriptor),
	}

	if op.Kind == KindUnknown {
		c.logger.Warn("descriptor kind not recognized, treating as non-cacheable",
			zap.String("descriptor", descriptor))
	}

	c.memo.Set(descriptor, op)
	return op
}

// classifyKind decides read vs write from the leading SQL keyword or the
// method-chain verb.
func (c *Classifier) classifyKind(descriptor string) Kind {
	fields := strings.Fields(descriptor)
	if len(fields) == 0 {
		return KindUnknown
	}

	if kind, ok := verbKind(fields[0]); ok {
		return kind
	}

	if m := methodVerbPattern.FindStringSubmatch(descriptor); m != nil {
		if kind, ok := verbKind(m[1]); ok {
			return kind
		}
	}

	return KindUnknown
}

func verbKind(verb string) (Kind, bool) {
	v := strings.ToLower(verb)
	if _, ok := readVerbs[v]; ok {
		return KindRead, true
	}
	if _, ok := writeVerbs[v]; ok {
		return KindWrite, true
	}
	return KindUnknown, false
}

// extractTables runs the ordered matcher list over the descriptor and
// resolves raw identifiers to canonical table names.
func (c *Classifier) extractTables(descriptor string) []string {
	var tables []string
	for _, p := range tablePatterns {
		for _, match := range p.re.FindAllStringSubmatch(descriptor, -1) {
			raw := match[1]
			if isSQLNoise(raw) {
				continue
			}
			tables = append(tables, c.resolveTable(raw, p.isModel))
		}
	}
	return dedupeSorted(tables)
}

// isSQLNoise filters keywords the FROM/JOIN patterns can accidentally
// capture (e.g. "DELETE FROM ... WHERE" matched after a subquery).
func isSQLNoise(raw string) bool {
	switch strings.ToLower(raw) {
	case "select", "where", "inner", "outer", "left", "right", "lateral":
		return true
	}
	return false
}

// resolveTable maps a raw identifier to its canonical table name. Explicit
// mapping wins; model identifiers otherwise go through the snake_case +
// pluralize transform, while SQL-extracted identifiers are normalized to
// snake_case only (they already name tables).
func (c *Classifier) resolveTable(raw string, isModel bool) string {
	if table, ok := c.modelTables[raw]; ok {
		return table
	}
	if isModel {
		return tableFromModel(raw)
	}
	return toSnake(raw)
}
