package workflow

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/gojq"

	"github.com/docuflow/workflow-engine/rules"
)

// Transformation names understood by the data_transform handler.
const (
	TransformJSONExtract = "json_extract"
	TransformFilter      = "filter"
	TransformMap         = "map"
)

// Condition operators understood by the condition handler.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
)

// dataTransformHandler reshapes the data context. An unrecognized
// transformation returns the context unchanged; the authoring path rejects
// it at creation time.
type dataTransformHandler struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func newDataTransformHandler() *dataTransformHandler {
	return &dataTransformHandler{cache: make(map[string]*gojq.Code)}
}

func (h *dataTransformHandler) Execute(ctx context.Context, config, data map[string]interface{}) (interface{}, error) {
	switch configString(config, "transformation") {
	case TransformJSONExtract:
		return h.extract(ctx, configString(config, "path"), data)
	case TransformFilter:
		return applyFilter(filterInput(config, data), config), nil
	case TransformMap:
		mapping, _ := config["mapping"].(map[string]interface{})
		return applyMapping(mapping, data), nil
	default:
		return data, nil
	}
}

// extract traverses the context along a dot path ("a.b.c"). A missing or
// non-traversable segment yields nil, never an error.
func (h *dataTransformHandler) extract(ctx context.Context, path string, data map[string]interface{}) (interface{}, error) {
	if path == "" {
		return data, nil
	}

	code, err := h.getOrCompile(path)
	if err != nil {
		// A path that cannot compile behaves like a missing path.
		return nil, nil
	}

	iter := code.RunWithContext(ctx, map[string]interface{}(data))
	val, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if _, isErr := val.(error); isErr {
		return nil, nil
	}
	return val, nil
}

// getOrCompile returns a cached gojq program for the dot path, compiling on
// first use. Each segment carries the optional operator so traversal through
// non-objects is suppressed instead of erroring.
func (h *dataTransformHandler) getOrCompile(path string) (*gojq.Code, error) {
	h.mu.RLock()
	if code, ok := h.cache[path]; ok {
		h.mu.RUnlock()
		return code, nil
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	if code, ok := h.cache[path]; ok {
		return code, nil
	}

	var query strings.Builder
	for _, segment := range strings.Split(path, ".") {
		query.WriteString(fmt.Sprintf(`.%q?`, segment))
	}

	parsed, err := gojq.Parse(query.String())
	if err != nil {
		return nil, err
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, err
	}

	h.cache[path] = code
	return code, nil
}

// filterInput selects what the filter operates on: the context entry named
// by config["key"] when present, otherwise the whole context.
func filterInput(config, data map[string]interface{}) interface{} {
	if key := configString(config, "key"); key != "" {
		return data[key]
	}
	return data
}

// applyFilter retains the elements of a sequence matching a single-field
// predicate. Non-sequence input is returned unchanged.
func applyFilter(input interface{}, config map[string]interface{}) interface{} {
	items, ok := input.([]interface{})
	if !ok {
		return input
	}

	field := configString(config, "field")
	want := config["value"]
	match := configStringDefault(config, "match", OpEquals)

	filtered := make([]interface{}, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		got, ok := entry[field]
		if !ok {
			continue
		}
		switch match {
		case OpContains:
			if strings.Contains(fmt.Sprintf("%v", got), fmt.Sprintf("%v", want)) {
				filtered = append(filtered, item)
			}
		default:
			if looseEquals(got, want) {
				filtered = append(filtered, item)
			}
		}
	}
	return filtered
}

// applyMapping builds a new mapping by renaming keys per a {newKey: oldKey}
// table. Old keys absent from the context are carried over as nil.
func applyMapping(mapping map[string]interface{}, data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(mapping))
	for newKey, oldKey := range mapping {
		out[newKey] = data[fmt.Sprintf("%v", oldKey)]
	}
	return out
}

// conditionHandler evaluates a predicate against the data context. It has no
// branching effect: the result is recorded and threaded forward, but the
// coordinator never skips steps based on it.
type conditionHandler struct {
	evaluator rules.Evaluator
}

func (h *conditionHandler) Execute(ctx context.Context, config, data map[string]interface{}) (interface{}, error) {
	if expression := configString(config, "expression"); expression != "" {
		if h.evaluator == nil {
			return nil, fmt.Errorf("condition: no evaluator configured for expression %q", expression)
		}
		met, err := h.evaluator.Evaluate(expression, data)
		if err != nil {
			return nil, fmt.Errorf("condition: %w", err)
		}
		return map[string]interface{}{
			"condition_met": met,
		}, nil
	}

	checked := data[configString(config, "condition")]
	return map[string]interface{}{
		"condition_met": compare(checked, config["value"], configString(config, "operator")),
		"checked_value": checked,
	}, nil
}

// compare applies the condition operator. An unrecognized operator evaluates
// to false.
func compare(checked, want interface{}, operator string) bool {
	switch operator {
	case OpEquals:
		return looseEquals(checked, want)
	case OpNotEquals:
		return !looseEquals(checked, want)
	case OpGreaterThan:
		a, aok := toFloat(checked)
		b, bok := toFloat(want)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := toFloat(checked)
		b, bok := toFloat(want)
		return aok && bok && a < b
	case OpContains:
		return strings.Contains(fmt.Sprintf("%v", checked), fmt.Sprintf("%v", want))
	default:
		return false
	}
}

// looseEquals compares two values structurally, falling back to numeric
// comparison so 2 and 2.0 compare equal across JSON decodings.
func looseEquals(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

// toFloat coerces numeric types (and numeric strings) to float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// delayHandler suspends the run for config["duration"] milliseconds. This is
// the only step type that deliberately blocks without doing work; it holds
// the single execution goroutine for the full duration.
type delayHandler struct{}

func (h *delayHandler) Execute(ctx context.Context, config, data map[string]interface{}) (interface{}, error) {
	duration, ok := toFloat(config["duration"])
	if !ok || duration < 0 {
		duration = 0
	}
	ms := int64(duration)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(ms) * time.Millisecond):
	}

	return map[string]interface{}{
		"delayed_for_ms": ms,
	}, nil
}
