package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ErrUnknownMetric is returned by MergeMetrics for a key Metrics does not have.
var ErrUnknownMetric = errors.New("extract: unknown metric")

var metricKeys = func() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Metrics{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		keys[name] = struct{}{}
	}
	return keys
}()

// MergeMetrics overlays patch onto base. Keys use the JSON names of Metrics;
// keys absent from patch keep their base value. Unknown keys and values of
// the wrong type are rejected and base is returned unchanged.
func MergeMetrics(base Metrics, patch map[string]json.RawMessage) (Metrics, error) {
	var unknown []string
	for k := range patch {
		if _, ok := metricKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return base, fmt.Errorf("%w: %s", ErrUnknownMetric, strings.Join(unknown, ", "))
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return base, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return base, err
	}
	for k, v := range patch {
		fields[k] = v
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return base, err
	}
	var out Metrics
	if err := json.Unmarshal(raw, &out); err != nil {
		return base, fmt.Errorf("extract: merge metrics: %w", err)
	}
	return out, nil
}
