package duplicator

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/goliatone/go-duplicator/layering"
)

const (
	RuleAsset   = "asset"
	RulePlugins = "plugins"
)

// ReplayRule extends the replay whitelist with one more sub-component. When
// is an optional boolean condition; Fields lists the captured keys to copy
// (every key except id when empty).
//
// Conditions see targetId, targetType, storable (captured config), live
// (current config on the new entity) and storables (captured ids). Args is
// exposed as args; metadata carries anchorId and captureId.
type ReplayRule struct {
	Name       string         `yaml:"name" json:"name"`
	StorableID string         `yaml:"storable" json:"storable"`
	When       string         `yaml:"when,omitempty" json:"when,omitempty"`
	Fields     []string       `yaml:"fields,omitempty" json:"fields,omitempty"`
	Deferred   bool           `yaml:"deferred,omitempty" json:"deferred,omitempty"`
	Args       map[string]any `yaml:"args,omitempty" json:"args,omitempty"`
}

func (r ReplayRule) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.StorableID
}

func (r ReplayRule) validate() error {
	if strings.TrimSpace(r.StorableID) == "" {
		return fmt.Errorf("duplicator: replay rule %q: storable is required", r.Name)
	}
	return nil
}

type replayer struct {
	anchorID   string
	rules      []preparedRule
	evalLogger EvaluatorLogger
	logger     *zap.Logger
}

type preparedRule struct {
	ReplayRule
	when *condition
}

func prepareRules(evaluator Evaluator, rules []ReplayRule) []preparedRule {
	prepared := make([]preparedRule, 0, len(rules))
	for _, rule := range rules {
		p := preparedRule{ReplayRule: rule}
		if rule.When != "" {
			p.when = compileCondition(evaluator, rule.label(), rule.When)
		}
		prepared = append(prepared, p)
	}
	return prepared
}

// replay copies captured configuration onto a freshly created entity. Nothing
// here aborts the reconcile: problems land in the report.
func (r *replayer) replay(entity Entity, snapshot Snapshot, report *Report) {
	r.replayAsset(entity, snapshot, report)
	r.replayPlugins(entity, snapshot, report)
	for _, rule := range r.rules {
		r.replayRule(entity, snapshot, rule, report)
	}
}

func (r *replayer) replayAsset(entity Entity, snapshot Snapshot, report *Report) {
	if snapshot.Type() != CustomUnityAssetType {
		return
	}
	captured, ok := snapshot.Storable(AssetStorableID)
	if !ok {
		return
	}
	live, ok := entity.Storable(AssetStorableID)
	if !ok {
		r.skip(RuleAsset, AssetStorableID, report)
		return
	}

	source, err := DecodeAsset(snapshot.ID(), captured)
	if err != nil {
		r.fail(RuleAsset, AssetStorableID, err, report)
		return
	}
	current, err := DecodeAsset(entity.ID(), live.Config())
	if err != nil {
		r.fail(RuleAsset, AssetStorableID, err, report)
		return
	}
	current.AssetName = source.AssetName
	current.AssetURL = source.AssetURL
	if err := live.ApplyConfig(current.Config()); err != nil {
		r.fail(RuleAsset, AssetStorableID, err, report)
		return
	}
	report.Replayed = append(report.Replayed, RuleAsset)
}

func (r *replayer) replayPlugins(entity Entity, snapshot Snapshot, report *Report) {
	captured, ok := snapshot.Storable(PluginManagerStorableID)
	if !ok {
		return
	}
	live, ok := entity.Storable(PluginManagerStorableID)
	if !ok {
		r.skip(RulePlugins, PluginManagerStorableID, report)
		return
	}

	source, err := DecodePluginManager(snapshot.ID(), captured)
	if err != nil {
		r.fail(RulePlugins, PluginManagerStorableID, err, report)
		return
	}
	current, err := DecodePluginManager(entity.ID(), live.Config())
	if err != nil {
		r.fail(RulePlugins, PluginManagerStorableID, err, report)
		return
	}
	current.Plugins = layering.MergeMaps(source.Plugins, current.Plugins)
	if err := live.ApplyConfigDeferred(current.Config()); err != nil {
		r.fail(RulePlugins, PluginManagerStorableID, err, report)
		return
	}
	report.Replayed = append(report.Replayed, RulePlugins)
}

func (r *replayer) replayRule(entity Entity, snapshot Snapshot, rule preparedRule, report *Report) {
	name := rule.label()
	captured, ok := snapshot.Storable(rule.StorableID)
	if !ok {
		return
	}
	live, ok := entity.Storable(rule.StorableID)
	if !ok {
		r.skip(name, rule.StorableID, report)
		return
	}
	current := live.Config().Clone()
	if current == nil {
		current = Config{}
	}

	if rule.when != nil {
		matched, err := rule.when.evaluate(r.evalLogger, RuleContext{
			Snapshot: map[string]any{
				"targetId":   entity.ID(),
				"targetType": snapshot.Type(),
				"storable":   map[string]any(captured),
				"live":       map[string]any(current.Clone()),
				"storables":  snapshot.StorableIDs(),
			},
			Args: layering.Clone(rule.Args),
			Metadata: map[string]any{
				"anchorId":  r.anchorID,
				"captureId": snapshot.CaptureID(),
			},
			Rule: name,
		})
		if err != nil {
			r.fail(name, rule.StorableID, err, report)
			return
		}
		if !matched {
			return
		}
	}

	for _, key := range ruleFields(rule, captured) {
		value, ok := captured[key]
		if !ok {
			continue
		}
		current[key] = layering.Clone(value)
	}

	apply := live.ApplyConfig
	if rule.Deferred {
		apply = live.ApplyConfigDeferred
	}
	if err := apply(current); err != nil {
		r.fail(name, rule.StorableID, err, report)
		return
	}
	report.Replayed = append(report.Replayed, name)
}

func ruleFields(rule preparedRule, captured Config) []string {
	if len(rule.Fields) > 0 {
		return rule.Fields
	}
	keys := make([]string, 0, len(captured))
	for key := range captured {
		if key == "id" {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func (r *replayer) skip(rule, storableID string, report *Report) {
	report.Skipped = append(report.Skipped, rule)
	r.logger.Debug("replay skipped",
		zap.String("rule", rule),
		zap.String("storable", storableID),
		zap.String("target", report.TargetID),
		zap.Error(ErrStorableMissing),
	)
}

func (r *replayer) fail(rule, storableID string, err error, report *Report) {
	replayErr := &ReplayError{Rule: rule, StorableID: storableID, Err: err}
	report.Failures = append(report.Failures, replayErr)
	r.logger.Warn("replay failed",
		zap.String("rule", rule),
		zap.String("storable", storableID),
		zap.String("target", report.TargetID),
		zap.Error(err),
	)
}
