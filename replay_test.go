package duplicator_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	duplicator "github.com/goliatone/go-duplicator"
)

func respawnWithRules(t *testing.T, opts ...duplicator.Option) (scene, duplicator.Report) {
	t.Helper()
	s := newScene(t)
	d := s.duplicator(t, opts...)
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.host.Remove("Cube"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	report, err := d.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	return s, report
}

func TestReplayRuleConditions(t *testing.T) {
	cases := []struct {
		name     string
		engine   string
		when     string
		args     map[string]any
		replayed bool
	}{
		{name: "expr match", engine: duplicator.EngineExpr, when: `storable.scale > 1 && targetType == "CustomUnityAsset"`, replayed: true},
		{name: "expr no match", engine: duplicator.EngineExpr, when: `live.scale > 1`, replayed: false},
		{name: "expr storables", engine: duplicator.EngineExpr, when: `"asset" in storables`, replayed: true},
		{name: "cel match", engine: duplicator.EngineCEL, when: `storable.scale > 1.0 && targetId == "Cube"`, replayed: true},
		{name: "cel no match", engine: duplicator.EngineCEL, when: `live.scale > 1.0`, replayed: false},
		{name: "no condition", engine: duplicator.EngineExpr, when: "", replayed: true},
		{name: "expr args", engine: duplicator.EngineExpr, when: `storable.scale > args.min`, args: map[string]any{"min": 2.0}, replayed: true},
		{name: "cel args", engine: duplicator.EngineCEL, when: `storable.scale > args.min`, args: map[string]any{"min": 3.0}, replayed: false},
		{name: "expr metadata", engine: duplicator.EngineExpr, when: `metadata.anchorId == "Person" && metadata.captureId != ""`, replayed: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := duplicator.ReplayRule{Name: "scale", StorableID: "scale", When: tc.when, Args: tc.args}
			s, report := respawnWithRules(t, duplicator.WithEngine(tc.engine), duplicator.WithReplayRules(rule))

			if len(report.Failures) != 0 {
				t.Fatalf("unexpected failures %v", report.Failures)
			}
			applied := s.storable(t, "Cube", "scale").Applied()
			if !tc.replayed {
				if len(applied) != 0 {
					t.Fatalf("rule should not have applied, got %v", applied)
				}
				return
			}
			if len(applied) != 1 {
				t.Fatalf("expected one apply, got %d", len(applied))
			}
			if diff := cmp.Diff(duplicator.Config{"id": "scale", "scale": 2.5}, applied[0]); diff != "" {
				t.Fatalf("scale config mismatch (-want +got):\n%s", diff)
			}
			if report.Replayed[len(report.Replayed)-1] != "scale" {
				t.Fatalf("expected scale in replayed list, got %v", report.Replayed)
			}
		})
	}
}

func TestReplayRuleFieldsAndDeferred(t *testing.T) {
	rule := duplicator.ReplayRule{Name: "scale-deferred", StorableID: "scale", Fields: []string{"scale", "missing"}, Deferred: true}
	s, report := respawnWithRules(t, duplicator.WithReplayRules(rule))

	st := s.storable(t, "Cube", "scale")
	if len(st.Applied()) != 0 || len(st.Deferred()) != 1 {
		t.Fatalf("expected a single deferred apply")
	}
	if diff := cmp.Diff(duplicator.Config{"id": "scale", "scale": 2.5}, st.Deferred()[0]); diff != "" {
		t.Fatalf("scale config mismatch (-want +got):\n%s", diff)
	}
	if report.Replayed[len(report.Replayed)-1] != "scale-deferred" {
		t.Fatalf("unexpected replayed list %v", report.Replayed)
	}
}

func TestReplayRuleErrorsAreNonFatal(t *testing.T) {
	cases := []struct {
		name string
		when string
	}{
		{name: "syntax", when: `storable.scale >`},
		{name: "not boolean", when: `storable.scale`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := duplicator.ReplayRule{Name: "scale", StorableID: "scale", When: tc.when}
			s, report := respawnWithRules(t, duplicator.WithReplayRules(rule))

			if len(report.Failures) != 1 {
				t.Fatalf("expected one failure, got %v", report.Failures)
			}
			var evalErr *duplicator.EvaluationError
			if !errors.As(report.Failures[0], &evalErr) || evalErr.Rule != "scale" {
				t.Fatalf("expected EvaluationError for rule scale, got %v", report.Failures[0])
			}
			if len(s.storable(t, "Cube", "scale").Applied()) != 0 {
				t.Fatalf("failed rule must not apply")
			}
			if s.entity(t, "Cube").PoseWrites() != 1 {
				t.Fatalf("target must still be positioned")
			}
		})
	}
}

func TestReplayRuleUsesCustomFunctions(t *testing.T) {
	double := func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("double expects one argument")
		}
		v, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("double expects a number, got %T", args[0])
		}
		return v * 2, nil
	}
	rule := duplicator.ReplayRule{Name: "scale", StorableID: "scale", When: `double(storable.scale) == 5`}
	s, report := respawnWithRules(t,
		duplicator.WithCustomFunction("double", double),
		duplicator.WithReplayRules(rule),
	)
	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures %v", report.Failures)
	}
	if len(s.storable(t, "Cube", "scale").Applied()) != 1 {
		t.Fatalf("expected the rule to apply")
	}
}

func TestReplayRuleSkippedWhenLiveStorableMissing(t *testing.T) {
	rule := duplicator.ReplayRule{Name: "morphs", StorableID: "geometry"}
	s := newScene(t)
	cube := s.entity(t, "Cube")
	cube.AddStorable(duplicator.Config{"id": "geometry", "morphs": []any{"smile"}})
	s.doc.Atoms[1].Storables = append(s.doc.Atoms[1].Storables, duplicator.Config{"id": "geometry", "morphs": []any{"smile"}})

	d := s.duplicator(t, duplicator.WithReplayRules(rule))
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.host.Remove("Cube"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	report, err := d.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if diff := cmp.Diff([]string{"morphs"}, report.Skipped); diff != "" {
		t.Fatalf("skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidReplayRuleRejected(t *testing.T) {
	s := newScene(t)
	_, err := duplicator.New(s.host, s.doc, s.anchor, duplicator.WithReplayRules(duplicator.ReplayRule{Name: "broken"}))
	if err == nil {
		t.Fatalf("expected error for rule without storable")
	}
}

func TestUnknownEngineRejected(t *testing.T) {
	s := newScene(t)
	if _, err := duplicator.New(s.host, s.doc, s.anchor, duplicator.WithEngine("lua")); err == nil {
		t.Fatalf("expected error for unknown engine")
	}
}

type recordingEvaluator struct {
	mu       sync.Mutex
	compiled []string
	seen     []duplicator.RuleContext
}

func (e *recordingEvaluator) Evaluate(duplicator.RuleContext, string) (any, error) {
	return nil, errors.New("conditions should run through their compiled rule")
}

func (e *recordingEvaluator) Compile(expr string) (duplicator.CompiledRule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = append(e.compiled, expr)
	return recordedRule{evaluator: e}, nil
}

type recordedRule struct {
	evaluator *recordingEvaluator
}

func (r recordedRule) Evaluate(ctx duplicator.RuleContext) (any, error) {
	r.evaluator.mu.Lock()
	defer r.evaluator.mu.Unlock()
	r.evaluator.seen = append(r.evaluator.seen, ctx)
	return true, nil
}

func TestReplayConditionCompiledOnce(t *testing.T) {
	s := newScene(t)
	evaluator := &recordingEvaluator{}
	rule := duplicator.ReplayRule{
		Name:       "scale",
		StorableID: "scale",
		When:       "storable.scale > args.min",
		Args:       map[string]any{"min": 1.0},
	}
	d := s.duplicator(t, duplicator.WithEvaluator(evaluator), duplicator.WithReplayRules(rule))
	if diff := cmp.Diff([]string{"storable.scale > args.min"}, evaluator.compiled); diff != "" {
		t.Fatalf("expected the condition compiled at construction (-want +got):\n%s", diff)
	}

	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	selection, _ := d.Selection(ctx)
	for i := 0; i < 2; i++ {
		if err := s.host.Remove("Cube"); err != nil {
			t.Fatalf("remove: %v", err)
		}
		report, err := d.Reconcile(ctx)
		if err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		if len(report.Failures) != 0 {
			t.Fatalf("unexpected failures %v", report.Failures)
		}
	}

	if len(evaluator.compiled) != 1 {
		t.Fatalf("expected no recompilation, got %v", evaluator.compiled)
	}
	if len(evaluator.seen) != 2 {
		t.Fatalf("expected one evaluation per respawn, got %d", len(evaluator.seen))
	}
	got := evaluator.seen[0]
	if got.Rule != "scale" || got.Args["min"] != 1.0 {
		t.Fatalf("unexpected rule context %+v", got)
	}
	wantMetadata := map[string]any{"anchorId": "Person", "captureId": selection.Snapshot.CaptureID()}
	if diff := cmp.Diff(wantMetadata, got.Metadata); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestCustomFunctionRegistrationErrors(t *testing.T) {
	identity := func(args ...any) (any, error) { return args[0], nil }
	cases := []struct {
		name string
		opts []duplicator.Option
	}{
		{name: "duplicate", opts: []duplicator.Option{
			duplicator.WithCustomFunction("identity", identity),
			duplicator.WithCustomFunction("Identity", identity),
		}},
		{name: "empty name", opts: []duplicator.Option{duplicator.WithCustomFunction("", identity)}},
		{name: "nil function", opts: []duplicator.Option{duplicator.WithCustomFunction("identity", nil)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newScene(t)
			if _, err := duplicator.New(s.host, s.doc, s.anchor, tc.opts...); err == nil {
				t.Fatalf("expected registration error")
			}
		})
	}
}

func TestAssetReplayStringifiesScalars(t *testing.T) {
	s := newScene(t)
	s.doc.Atoms[1].Storables[0] = duplicator.Config{"id": "asset", "assetName": 5.0, "assetUrl": true}
	d := s.duplicator(t)
	ctx := context.Background()
	if err := d.Select(ctx, "Cube"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.host.Remove("Cube"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	report, err := d.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures %v", report.Failures)
	}
	applied := s.storable(t, "Cube", "asset").Applied()
	if len(applied) != 1 {
		t.Fatalf("expected one asset apply, got %d", len(applied))
	}
	if applied[0]["assetName"] != "5" || applied[0]["assetUrl"] != "true" {
		t.Fatalf("unexpected asset config %v", applied[0])
	}
}
