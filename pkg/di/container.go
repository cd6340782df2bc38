// Package di wires the cache service, classifier, dependency graph, and
// query wrapper into a single container so applications construct the whole
// subsystem in one call.
package di

import (
	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/querycache"
)

// Container provides dependency injection for the query-cache subsystem.
// It manages singleton instances of the cache service, classifier, and
// dependency graph, and exposes the wrapper business logic consumes.
type Container struct {
	service    *cache.Service
	classifier *querycache.Classifier
	graph      *querycache.DependencyGraph
	wrapper    *querycache.Wrapper
	config     cache.Config
	logger     *zap.Logger
}

// Option customizes container construction.
type Option func(*settings)

type settings struct {
	logger         *zap.Logger
	graph          *querycache.DependencyGraph
	classifierCfg  *querycache.ClassifierConfig
	wrapperOptions []querycache.WrapperOption
}

// WithLogger sets the logger shared by every component in the container.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithGraph overrides the default dependency graph, typically with one
// loaded from configuration via querycache.LoadGraph.
func WithGraph(graph *querycache.DependencyGraph) Option {
	return func(s *settings) { s.graph = graph }
}

// WithClassifierConfig overrides the default classifier configuration.
func WithClassifierConfig(cfg querycache.ClassifierConfig) Option {
	return func(s *settings) { s.classifierCfg = &cfg }
}

// WithWrapperOptions appends options applied to the query wrapper.
func WithWrapperOptions(opts ...querycache.WrapperOption) Option {
	return func(s *settings) { s.wrapperOptions = append(s.wrapperOptions, opts...) }
}

// NewContainer validates the configuration and builds the full subsystem:
// tiered cache service, classifier, graph, and wrapper.
func NewContainer(cfg cache.Config, opts ...Option) (*Container, error) {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	service, err := cache.New(cfg, cache.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	classifierCfg := querycache.DefaultClassifierConfig()
	if s.classifierCfg != nil {
		classifierCfg = *s.classifierCfg
	}
	classifier := querycache.NewClassifier(classifierCfg, s.logger)

	graph := s.graph
	if graph == nil {
		graph = querycache.DefaultGraph()
	}

	wrapperOpts := append([]querycache.WrapperOption{
		querycache.WithLogger(s.logger),
		querycache.WithDefaultTTL(cfg.DefaultTTL),
	}, s.wrapperOptions...)

	return &Container{
		service:    service,
		classifier: classifier,
		graph:      graph,
		wrapper:    querycache.NewWrapper(service, classifier, graph, wrapperOpts...),
		config:     cfg,
		logger:     s.logger,
	}, nil
}

// NewContainerWithDefaults builds a container using default configuration.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// Wrapper returns the query wrapper business logic should call.
func (c *Container) Wrapper() *querycache.Wrapper {
	return c.wrapper
}

// Service returns the cache service, which also carries the administrative
// surface (State, Reset, ClearAll, Counts).
func (c *Container) Service() *cache.Service {
	return c.service
}

// Classifier returns the singleton classifier instance.
func (c *Container) Classifier() *querycache.Classifier {
	return c.classifier
}

// Graph returns the table dependency graph.
func (c *Container) Graph() *querycache.DependencyGraph {
	return c.graph
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close shuts down the cache service and its background tasks.
func (c *Container) Close() error {
	return c.service.Close()
}
