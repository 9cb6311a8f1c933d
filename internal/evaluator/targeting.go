package evaluator

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Targeter evaluates targeting rule trees against a context. Compiled
// regular-expression programs are cached per pattern.
type Targeter struct {
	mu           sync.RWMutex
	programCache map[string]*vm.Program
}

// NewTargeter creates a targeter with an empty program cache
func NewTargeter() *Targeter {
	return &Targeter{
		programCache: make(map[string]*vm.Program),
	}
}

// Matches reports whether evalCtx satisfies rule. A nil rule always matches;
// malformed rules and unknown rule types never do.
func (t *Targeter) Matches(rule *domain.Rule, evalCtx domain.Context) bool {
	if rule == nil {
		return true
	}

	switch rule.Type {
	case domain.RuleAppVersionGte:
		return t.evaluateVersionGte(evalCtx.AppVersion, rule.Version)

	case domain.RuleRegionIn:
		if evalCtx.Region == "" {
			return false
		}
		for _, r := range rule.Regions {
			if r == evalCtx.Region {
				return true
			}
		}
		return false

	case domain.RuleAttributeEquals:
		value, ok := evalCtx.Attribute(rule.Attribute)
		if !ok {
			return false
		}
		return t.evaluateEquals(value, rule.Value)

	case domain.RuleAttributeMatches:
		value, ok := evalCtx.Attribute(rule.Attribute)
		if !ok {
			return false
		}
		matched, err := t.evaluateMatches(value, rule.Pattern)
		return err == nil && matched

	case domain.RuleAll:
		for i := range rule.Rules {
			if !t.Matches(&rule.Rules[i], evalCtx) {
				return false
			}
		}
		return true

	default:
		return false
	}
}

// evaluateVersionGte compares semantic versions. "2.1" and "v2.1.0" are
// accepted; an unparsable side fails the rule.
func (t *Targeter) evaluateVersionGte(actual, threshold string) bool {
	if actual == "" {
		return false
	}
	have, err := semver.NewVersion(actual)
	if err != nil {
		return false
	}
	want, err := semver.NewVersion(threshold)
	if err != nil {
		return false
	}
	return !have.LessThan(want)
}

// evaluateEquals compares typed values. Numbers compare by value whatever
// their Go type, so an int attribute equals a float64 decoded from JSON;
// otherwise kinds must match, and "3" never equals 3.
func (t *Targeter) evaluateEquals(a, b interface{}) bool {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		return ok && x == y
	}
	if _, ok := toFloat(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// evaluateMatches checks a regular expression through expr's matches operator
func (t *Targeter) evaluateMatches(value interface{}, pattern string) (bool, error) {
	program, err := t.program(pattern)
	if err != nil {
		return false, err
	}

	env := map[string]interface{}{"value": fmt.Sprint(value)}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate regex: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("regex evaluation returned non-boolean: %T", result)
	}
	return matched, nil
}

func (t *Targeter) program(pattern string) (*vm.Program, error) {
	t.mu.RLock()
	program, ok := t.programCache[pattern]
	t.mu.RUnlock()
	if ok {
		return program, nil
	}

	source := "value matches " + strconv.Quote(pattern)
	program, err := expr.Compile(source,
		expr.Env(map[string]interface{}{"value": ""}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile regex expression: %w", err)
	}

	t.mu.Lock()
	t.programCache[pattern] = program
	t.mu.Unlock()
	return program, nil
}
