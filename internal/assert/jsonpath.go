// Package assert builds session predicates over saved HTTP results: status
// checks, JSONPath comparisons and JSON Schema validation. They plug into
// dsl.Ensure, dsl.RunIf and the loop nodes.
package assert

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract reads the value at a JSONPath expression from body.
func Extract(body []byte, path string) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return gjson.Result{}, fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON document")
	}

	result := gjson.GetBytes(body, GJSONPath(path))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("path not found: %s", path)
	}
	return result, nil
}

// GJSONPath converts the JSONPath subset rhino accepts ($.a.b[0]['c']) to
// gjson syntax (a.b.0.c).
func GJSONPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	r := strings.NewReplacer(
		"['", ".", "']", "",
		`["`, ".", `"]`, "",
		"[", ".", "]", "",
	)
	return strings.TrimPrefix(r.Replace(path), ".")
}

// Equal reports whether a JSON value equals want. Numbers compare by value
// regardless of Go type; maps and slices compare structurally.
func Equal(got gjson.Result, want any) bool {
	switch w := want.(type) {
	case nil:
		return got.Type == gjson.Null
	case bool:
		return (got.Type == gjson.True || got.Type == gjson.False) && got.Bool() == w
	case string:
		return got.Type == gjson.String && got.Str == w
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return got.Type == gjson.Number && got.Num == reflect.ValueOf(w).Convert(reflect.TypeOf(float64(0))).Float()
	}

	// Normalise through JSON so YAML-decoded maps and ints compare with
	// gjson's float64 view.
	raw, err := json.Marshal(want)
	if err != nil {
		return false
	}
	var norm any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return false
	}
	return reflect.DeepEqual(got.Value(), norm)
}
