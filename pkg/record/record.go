// Package record provides the value type that flows between workflow nodes.
// A Record is an insertion-ordered, string-keyed map of dynamically-typed
// values. Keys prefixed with "_" are reserved for engine metadata.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MetadataPrefix marks reserved engine metadata keys.
const MetadataPrefix = "_"

// Reserved metadata keys attached to records by the engine and the
// built-in node behaviors.
const (
	// KeyRoute is the route label consumed by port resolution.
	KeyRoute = "_route"

	// KeyPartitionID is the partition assignment produced by partitioners.
	KeyPartitionID = "_partitionId"

	// KeyPartitionIndex is the input arrival order recorded by partitioners,
	// used by an ordered Collect to restore sequence.
	KeyPartitionIndex = "_partitionIndex"

	// KeySequence is a secondary ordering key within a partition.
	KeySequence = "_sequence"

	// KeyReplicaIndex is the 1-based copy index set by Broadcast/Replicate.
	KeyReplicaIndex = "_replicaIndex"

	// KeyBroadcastTargets is the configured target-node list set by Broadcast.
	KeyBroadcastTargets = "_broadcastTargets"

	// Rejection metadata set by the Reject behavior.
	KeyRejected        = "_rejected"
	KeyRejectionReason = "_rejectionReason"
	KeyRejectedAt      = "_rejectedAt"
	KeyRejectionOrigin = "_rejectionOrigin"

	// KeyValidationErrors holds rule failures recorded by Validate.
	KeyValidationErrors = "_validationErrors"

	// KeySchemaError holds the failure recorded by SchemaValidator.
	KeySchemaError = "_schema_error"

	// KeyDBError holds a row-level error recorded by external I/O behaviors.
	KeyDBError = "_dbError"
)

// NullToken is the literal used for absent or nil key-field values when
// building composite keys. The resulting key is collision-prone when field
// values legitimately contain "|" or the text "null"; this is a documented
// compatibility behavior, not something to fix here.
const NullToken = "null"

// Record is an insertion-ordered string-keyed map of values. Records are
// value-like: a node that mutates a record it did not create must Clone it
// first, since multiple downstream consumers of a broadcast share nothing.
type Record struct {
	keys   []string
	values map[string]interface{}
}

// New creates an empty record.
func New() *Record {
	return &Record{values: make(map[string]interface{})}
}

// FromMap builds a record from a plain map. Map iteration order is not
// defined, so keys are inserted in sorted order for determinism.
func FromMap(m map[string]interface{}) *Record {
	r := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

// FromPairs builds a record from alternating key, value arguments,
// preserving argument order. Odd trailing arguments are ignored.
func FromPairs(pairs ...interface{}) *Record {
	r := New()
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		r.Set(key, pairs[i+1])
	}
	return r
}

// Set stores a value, appending the key on first insertion.
func (r *Record) Set(key string, value interface{}) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key and whether it is present.
func (r *Record) Get(key string) (interface{}, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value for key, or nil when absent.
func (r *Record) Value(key string) interface{} {
	return r.values[key]
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Delete removes a key, preserving the order of the remaining keys.
func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of keys.
func (r *Record) Len() int {
	return len(r.keys)
}

// Clone returns a deep copy. Nested maps and slices are copied so that
// mutations of one copy are never observed through another.
func (r *Record) Clone() *Record {
	out := &Record{
		keys:   append([]string(nil), r.keys...),
		values: make(map[string]interface{}, len(r.values)),
	}
	for k, v := range r.values {
		out.values[k] = deepCopyValue(v)
	}
	return out
}

// ToMap returns a shallow map view of the record.
func (r *Record) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// StripMetadata removes every reserved ("_"-prefixed) key.
func (r *Record) StripMetadata() {
	for _, k := range r.Keys() {
		if strings.HasPrefix(k, MetadataPrefix) {
			r.Delete(k)
		}
	}
}

// RouteLabel returns the record's route label, or "" when unset.
func (r *Record) RouteLabel() string {
	if v, ok := r.values[KeyRoute]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetRouteLabel attaches a route label for port resolution.
func (r *Record) SetRouteLabel(label string) {
	r.Set(KeyRoute, label)
}

// MarshalJSON encodes the record as a JSON object in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record: expected JSON object, got %v", tok)
	}

	r.keys = nil
	r.values = make(map[string]interface{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key := keyTok.(string)
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return err
		}
		r.Set(key, value)
	}
	_, err = dec.Token() // closing brace
	return err
}

// Stringify converts a value to its composite-key string form. Nil becomes
// the NullToken literal.
func Stringify(v interface{}) string {
	if v == nil {
		return NullToken
	}
	if n, ok := v.(json.Number); ok {
		return n.String()
	}
	return fmt.Sprint(v)
}

// CompositeKey builds the pipe-joined key used by join, set and hash
// partition operators. Missing and nil fields contribute the NullToken.
func CompositeKey(r *Record, fields []string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, ok := r.Get(f)
		if !ok {
			parts[i] = NullToken
			continue
		}
		parts[i] = Stringify(v)
	}
	return strings.Join(parts, "|")
}

// AsFloat attempts a numeric interpretation of a value. Strings are parsed;
// booleans and other non-numeric values report false.
func AsFloat(v interface{}) (float64, bool) {
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
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// deepCopyValue copies nested maps and slices; scalars are returned as-is.
func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = deepCopyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = deepCopyValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case *Record:
		return t.Clone()
	default:
		return v
	}
}
