// Package predicates evaluates the Condition/ConditionalItem grammar used
// by pkginfo's installable_condition and manifest's conditional_items
// against the host facts gathered by pkg/hostfacts.
package predicates

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/windowsadmins/cimian/pkg/hostfacts"
	"github.com/windowsadmins/cimian/pkg/logging"
)

// Condition is a single predicate: fact Key compared to Value via Operator.
type Condition struct {
	Key      string      `yaml:"key" json:"key"`
	Operator string      `yaml:"operator" json:"operator"`
	Value    interface{} `yaml:"value" json:"value"`
}

// ConditionalItem pairs a condition (or AND/OR group of conditions) with the
// manifest item lists to include when it matches.
type ConditionalItem struct {
	Condition     *Condition   `yaml:"condition,omitempty" json:"condition,omitempty"`
	Conditions    []*Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	ConditionType string       `yaml:"condition_type,omitempty" json:"condition_type,omitempty"`

	ManagedInstalls   []string `yaml:"managed_installs,omitempty" json:"managed_installs,omitempty"`
	ManagedUninstalls []string `yaml:"managed_uninstalls,omitempty" json:"managed_uninstalls,omitempty"`
	ManagedUpdates    []string `yaml:"managed_updates,omitempty" json:"managed_updates,omitempty"`
	OptionalInstalls  []string `yaml:"optional_installs,omitempty" json:"optional_installs,omitempty"`
}

// Evaluator evaluates conditions against a fixed snapshot of host facts.
type Evaluator struct {
	facts map[string]interface{}
}

// NewEvaluator builds an Evaluator from a hostfacts.Facts snapshot, exposing
// the fact keys the Condition grammar recognizes: hostname, os_version,
// architecture, disk_free_mb, date, and any Custom keys the caller
// populated.
func NewEvaluator(f hostfacts.Facts) *Evaluator {
	facts := map[string]interface{}{
		"hostname":     f.Hostname,
		"os_version":   f.OSVersion,
		"architecture": f.Architecture,
		"disk_free_mb": f.DiskFreeMB,
		"date":         f.Now,
	}
	for k, v := range f.Custom {
		facts[k] = v
	}
	return &Evaluator{facts: facts}
}

// EvaluateCondition evaluates a single condition. A nil condition is vacuously true.
func (e *Evaluator) EvaluateCondition(c *Condition) (bool, error) {
	if c == nil {
		return true, nil
	}
	factValue, exists := e.facts[c.Key]
	if !exists {
		return false, fmt.Errorf("predicates: fact key %q not found", c.Key)
	}
	return compareValues(factValue, c.Operator, c.Value)
}

// EvaluateConditionalItem evaluates an item's Condition or Conditions/ConditionType group.
func (e *Evaluator) EvaluateConditionalItem(item *ConditionalItem) (bool, error) {
	if item == nil {
		return true, nil
	}
	if item.Condition != nil {
		return e.EvaluateCondition(item.Condition)
	}
	if len(item.Conditions) == 0 {
		return true, nil
	}

	conditionType := strings.ToUpper(item.ConditionType)
	if conditionType == "" {
		conditionType = "AND"
	}
	switch conditionType {
	case "AND":
		return e.evaluateAnd(item.Conditions)
	case "OR":
		return e.evaluateOr(item.Conditions)
	default:
		return false, fmt.Errorf("predicates: unknown condition_type %q", item.ConditionType)
	}
}

func (e *Evaluator) evaluateAnd(conditions []*Condition) (bool, error) {
	for _, c := range conditions {
		ok, err := e.EvaluateCondition(c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Evaluator) evaluateOr(conditions []*Condition) (bool, error) {
	for _, c := range conditions {
		ok, err := e.EvaluateCondition(c)
		if err != nil {
			logging.Warn("predicates: error evaluating condition in OR group", "error", err.Error())
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// ExpandConditionalItems evaluates each item against facts and merges the
// four item lists from every item whose condition matched. Items whose
// condition errors are logged and skipped rather than aborting expansion.
func (e *Evaluator) ExpandConditionalItems(items []*ConditionalItem) (managedInstalls, managedUninstalls, managedUpdates, optionalInstalls []string) {
	for _, item := range items {
		matches, err := e.EvaluateConditionalItem(item)
		if err != nil {
			logging.Warn("predicates: error evaluating conditional item", "error", err.Error())
			continue
		}
		if !matches {
			continue
		}
		managedInstalls = append(managedInstalls, item.ManagedInstalls...)
		managedUninstalls = append(managedUninstalls, item.ManagedUninstalls...)
		managedUpdates = append(managedUpdates, item.ManagedUpdates...)
		optionalInstalls = append(optionalInstalls, item.OptionalInstalls...)
	}
	return
}

func compareValues(factValue interface{}, operator string, conditionValue interface{}) (bool, error) {
	switch strings.ToUpper(operator) {
	case "==", "EQUALS":
		return valueToString(factValue) == valueToString(conditionValue), nil
	case "!=", "NOT_EQUALS":
		return valueToString(factValue) != valueToString(conditionValue), nil
	case ">", "GREATER_THAN":
		return valueToString(factValue) > valueToString(conditionValue), nil
	case "<", "LESS_THAN":
		return valueToString(factValue) < valueToString(conditionValue), nil
	case ">=", "GREATER_THAN_OR_EQUAL":
		return valueToString(factValue) >= valueToString(conditionValue), nil
	case "<=", "LESS_THAN_OR_EQUAL":
		return valueToString(factValue) <= valueToString(conditionValue), nil
	case "LIKE":
		pattern := strings.ToLower(strings.ReplaceAll(valueToString(conditionValue), "*", ""))
		return strings.Contains(strings.ToLower(valueToString(factValue)), pattern), nil
	case "IN":
		return compareIn(factValue, conditionValue), nil
	case "CONTAINS":
		return strings.Contains(strings.ToLower(valueToString(factValue)), strings.ToLower(valueToString(conditionValue))), nil
	case "BEGINSWITH":
		return strings.HasPrefix(strings.ToLower(valueToString(factValue)), strings.ToLower(valueToString(conditionValue))), nil
	case "ENDSWITH":
		return strings.HasSuffix(strings.ToLower(valueToString(factValue)), strings.ToLower(valueToString(conditionValue))), nil
	default:
		return false, fmt.Errorf("predicates: unknown operator %q", operator)
	}
}

func compareIn(factValue, conditionValue interface{}) bool {
	factStr := valueToString(factValue)
	switch cv := conditionValue.(type) {
	case []interface{}:
		for _, item := range cv {
			if factStr == valueToString(item) {
				return true
			}
		}
	case []string:
		for _, item := range cv {
			if factStr == item {
				return true
			}
		}
	case string:
		for _, item := range strings.Split(cv, ",") {
			if factStr == strings.TrimSpace(item) {
				return true
			}
		}
	}
	return false
}

func valueToString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case int, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
