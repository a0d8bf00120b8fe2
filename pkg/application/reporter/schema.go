package reporter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

type Kind uint8

const (
	KindString Kind = 1 << iota
	KindNumber
	KindBoolean
)

const optionalSuffix = "?"

var kindNames = []struct {
	kind Kind
	name string
}{
	{KindString, "string"},
	{KindNumber, "number"},
	{KindBoolean, "boolean"},
}

func (k Kind) String() string {
	var names []string
	for _, kn := range kindNames {
		if k&kn.kind != 0 {
			names = append(names, kn.name)
		}
	}
	return strings.Join(names, "|")
}

// Rule describes one parameter of an event. Either Kinds or Enum is set.
type Rule struct {
	Kinds    Kind
	Enum     []interface{}
	Optional bool
}

type EventRules map[string]Rule

// Rules is the event catalog: event name to its parameter schema.
type Rules map[string]EventRules

// ParseRule accepts "string", "number", "boolean", unions of them joined by "|"
// with an optional "?" suffix, or a slice of constants where a trailing nil
// marks the parameter optional.
func ParseRule(descriptor interface{}) (Rule, error) {
	switch d := descriptor.(type) {
	case string:
		return parseKindRule(d)
	case Rule:
		return d, d.validate()
	case nil:
		return Rule{}, errors.Wrap(ErrInvalidRule, "empty descriptor")
	}

	v := reflect.ValueOf(descriptor)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return Rule{}, errors.Wrapf(ErrInvalidRule, "unsupported descriptor %T", descriptor)
	}
	values := make([]interface{}, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		values = append(values, v.Index(i).Interface())
	}
	return parseEnumRule(values)
}

func ParseRules(catalog map[string]map[string]interface{}) (Rules, error) {
	rules := make(Rules, len(catalog))
	for event, params := range catalog {
		eventRules := make(EventRules, len(params))
		for param, descriptor := range params {
			rule, err := ParseRule(descriptor)
			if err != nil {
				return nil, errors.WithMessagef(err, "event %q, param %q", event, param)
			}
			eventRules[param] = rule
		}
		rules[event] = eventRules
	}
	return rules, nil
}

func MustParseRules(catalog map[string]map[string]interface{}) Rules {
	rules, err := ParseRules(catalog)
	if err != nil {
		panic(err)
	}
	return rules
}

func (r Rule) Check(value interface{}) error {
	if len(r.Enum) > 0 {
		for _, allowed := range r.Enum {
			if sameConstant(allowed, value) {
				return nil
			}
		}
		return errors.Errorf("%s is not one of %v", describe(value), r.Enum)
	}
	kind, ok := kindOf(value)
	if !ok || r.Kinds&kind == 0 {
		return errors.Errorf("expected %s, got %s", r.Kinds, describe(value))
	}
	return nil
}

func (r Rule) validate() error {
	if len(r.Enum) > 0 {
		if r.Kinds != 0 {
			return errors.Wrap(ErrInvalidRule, "rule has both kinds and enum")
		}
		for _, c := range r.Enum {
			if _, ok := kindOf(c); !ok {
				return errors.Wrapf(ErrInvalidRule, "enum member %v of type %T is not a primitive", c, c)
			}
		}
		return nil
	}
	if r.Kinds == 0 || r.Kinds&^(KindString|KindNumber|KindBoolean) != 0 {
		return errors.Wrapf(ErrInvalidRule, "invalid kinds %d", r.Kinds)
	}
	return nil
}

func (r Rule) clone() Rule {
	if r.Enum != nil {
		r.Enum = append([]interface{}(nil), r.Enum...)
	}
	return r
}

func (r Rules) clone() Rules {
	result := make(Rules, len(r))
	for event, params := range r {
		eventRules := make(EventRules, len(params))
		for name, rule := range params {
			eventRules[name] = rule.clone()
		}
		result[event] = eventRules
	}
	return result
}

func parseKindRule(descriptor string) (Rule, error) {
	var rule Rule
	body := descriptor
	if strings.HasSuffix(body, optionalSuffix) {
		rule.Optional = true
		body = strings.TrimSuffix(body, optionalSuffix)
	}
	if body == "" {
		return Rule{}, errors.Wrapf(ErrInvalidRule, "empty descriptor %q", descriptor)
	}

	for _, part := range strings.Split(body, "|") {
		kind, ok := kindByName(part)
		if !ok {
			return Rule{}, errors.Wrapf(ErrInvalidRule, "unknown kind %q in %q", part, descriptor)
		}
		if rule.Kinds&kind != 0 {
			return Rule{}, errors.Wrapf(ErrInvalidRule, "duplicated kind %q in %q", part, descriptor)
		}
		rule.Kinds |= kind
	}
	return rule, nil
}

func parseEnumRule(values []interface{}) (Rule, error) {
	var rule Rule
	if n := len(values); n > 0 && values[n-1] == nil {
		rule.Optional = true
		values = values[:n-1]
	}
	if len(values) == 0 {
		return Rule{}, errors.Wrap(ErrInvalidRule, "enum without constants")
	}
	rule.Enum = append([]interface{}(nil), values...)
	return rule, rule.validate()
}

func kindByName(name string) (Kind, bool) {
	for _, kn := range kindNames {
		if kn.name == name {
			return kn.kind, true
		}
	}
	return 0, false
}

// kindOf classifies by the underlying kind, so named types such as
// `type Plan string` count as their base kind.
func kindOf(value interface{}) (Kind, bool) {
	if _, ok := value.(json.Number); ok {
		return KindNumber, true
	}
	if _, ok := toFloat(value); ok {
		return KindNumber, true
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.String:
		return KindString, true
	case reflect.Bool:
		return KindBoolean, true
	default:
		return 0, false
	}
}

func toFloat(value interface{}) (float64, bool) {
	if n, ok := value.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	default:
		return 0, false
	}
}

// baseValue converts a primitive to string, bool or float64.
func baseValue(value interface{}) (interface{}, bool) {
	if f, ok := toFloat(value); ok {
		return f, true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String:
		return v.String(), true
	case reflect.Bool:
		return v.Bool(), true
	default:
		return nil, false
	}
}

// sameConstant compares primitives by value regardless of their Go type.
func sameConstant(a, b interface{}) bool {
	va, aOK := baseValue(a)
	vb, bOK := baseValue(b)
	return aOK && bOK && va == vb
}

func describe(value interface{}) string {
	return fmt.Sprintf("%v (%T)", value, value)
}
