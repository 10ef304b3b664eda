package duplicator

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoEvaluator = errors.New("duplicator: evaluator not configured")

// RuleContext carries inputs needed when evaluating a replay condition.
type RuleContext struct {
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	Rule     string
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx RuleContext) ruleLabel() string {
	if ctx.Rule != "" {
		return ctx.Rule
	}
	return "unknown"
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// condition is a replay condition compiled once when rules are configured.
// A compile error is kept and surfaces on every evaluation. Evaluations must
// yield a bool and every attempt is reported to the EvaluatorLogger.
type condition struct {
	engine   string
	expr     string
	compiled CompiledRule
	err      error
}

func compileCondition(evaluator Evaluator, rule, expr string) *condition {
	c := &condition{engine: evaluatorEngineName(evaluator), expr: expr}
	if evaluator == nil {
		c.err = wrapEvaluationError(c.engine, expr, rule, ErrNoEvaluator)
		return c
	}
	compiled, err := evaluator.Compile(expr)
	if err != nil {
		c.err = wrapEvaluationError(c.engine, expr, rule, err)
		return c
	}
	c.compiled = compiled
	return c
}

func (c *condition) evaluate(logger EvaluatorLogger, ctx RuleContext) (bool, error) {
	return runCondition(c.engine, logger, ctx, c.expr, func(ctx RuleContext) (any, error) {
		if c.err != nil {
			return nil, c.err
		}
		return c.compiled.Evaluate(ctx)
	})
}

func runCondition(engine string, logger EvaluatorLogger, ctx RuleContext, expr string, run func(RuleContext) (any, error)) (bool, error) {
	ctx = ctx.withDefaults()
	start := time.Now()
	value, err := run(ctx)
	if err == nil {
		if _, ok := value.(bool); !ok {
			err = fmt.Errorf("condition must evaluate to bool, got %T", value)
		}
	}
	err = wrapEvaluationError(engine, expr, ctx.ruleLabel(), err)
	if logger != nil {
		logger.LogEvaluation(EvaluatorLogEvent{
			Engine:   engine,
			Expr:     expr,
			Rule:     ctx.ruleLabel(),
			Duration: time.Since(start),
			Err:      err,
		})
	}
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*duplicator.exprEvaluator":
		return "expr"
	case "*duplicator.celEvaluator":
		return "cel"
	case "*duplicator.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}
