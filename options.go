package duplicator

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-duplicator/pkg/activity"
	"github.com/goliatone/go-duplicator/pkg/state"
)

// Option configures a Duplicator or Reconciler.
type Option func(*config)

const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

type config struct {
	logger      *zap.Logger
	evaluator   Evaluator
	engine      string
	evalLogger  EvaluatorLogger
	cache       ProgramCache
	functions   *FunctionRegistry
	rules       []ReplayRule
	guard       bool
	hooks       activity.Hooks
	activity    activity.Config
	activitySet bool
	store       state.Store[ReferenceSelection]
	ownerID     string
	errs        []error
}

func newConfig(opts []Option) (config, error) {
	cfg := config{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := errors.Join(cfg.errs...); err != nil {
		return cfg, err
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.evalLogger == nil {
		cfg.evalLogger = ZapEvaluatorLogger(cfg.logger)
	}
	if cfg.cache == nil {
		cfg.cache = NewProgramCache()
	}
	for _, rule := range cfg.rules {
		if err := rule.validate(); err != nil {
			return cfg, err
		}
	}
	if cfg.evaluator == nil {
		evaluator, err := newEngine(cfg.engine, cfg.cache, cfg.functions)
		if err != nil {
			return cfg, err
		}
		cfg.evaluator = evaluator
	}
	if !cfg.activitySet && len(cfg.hooks) > 0 {
		cfg.activity.Enabled = true
	}
	if cfg.store == nil {
		cfg.store = state.NewMemoryStore[ReferenceSelection]()
	}
	return cfg, nil
}

func newEngine(engine string, cache ProgramCache, functions *FunctionRegistry) (Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineExpr:
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(functions)), nil
	case EngineCEL:
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(functions)), nil
	case EngineJS:
		if !jsEvaluatorAvailable() {
			return nil, fmt.Errorf("duplicator: js evaluator requires the js_eval build tag")
		}
		return NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(functions)), nil
	default:
		return nil, fmt.Errorf("duplicator: unknown evaluator engine %q", engine)
	}
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithEvaluator overrides the engine used for replay rule conditions.
func WithEvaluator(evaluator Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = evaluator
	}
}

// WithEngine selects a built-in evaluator by name: expr (default), cel or js.
func WithEngine(name string) Option {
	return func(cfg *config) {
		cfg.engine = name
	}
}

// WithEvaluatorLogger receives one event per condition evaluation.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *config) {
		cfg.evalLogger = logger
	}
}

// WithProgramCache shares compiled conditions across instances.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.cache = cache
	}
}

// WithReplayRules appends extension rules to the asset and plugin replay.
func WithReplayRules(rules ...ReplayRule) Option {
	return func(cfg *config) {
		cfg.rules = append(cfg.rules, rules...)
	}
}

// WithInFlightGuard collapses concurrent reconciles of the same target id
// into a single run. Without it two triggers may both instantiate the target.
func WithInFlightGuard() Option {
	return func(cfg *config) {
		cfg.guard = true
	}
}

// WithActivityHooks registers hooks notified of selection and target events.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(cfg *config) {
		cfg.hooks = append(cfg.hooks, hooks...)
	}
}

// WithActivityConfig overrides activity defaults (channel, actor, enabled).
func WithActivityConfig(activityCfg activity.Config) Option {
	return func(cfg *config) {
		cfg.activity = activityCfg
		cfg.activitySet = true
	}
}

// WithStore replaces the in-memory holder of the selection.
func WithStore(store state.Store[ReferenceSelection]) Option {
	return func(cfg *config) {
		cfg.store = store
	}
}

// WithOwnerID names the selection record. Defaults to "<anchor>#duplicator".
func WithOwnerID(owner string) Option {
	return func(cfg *config) {
		cfg.ownerID = owner
	}
}
