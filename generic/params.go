/*
params.go - Comparison and merge utilities over parameter bags

PURPOSE:
  Templates, variants and request overrides all carry loosely-typed
  parameter bags. This file holds the handful of operations every other
  component relies on to compare and layer them.

META KEYS:
  Any key starting with '_' is a meta key. Meta keys are carried in data
  (e.g. "_virtual": true on the synthetic default variant) but are
  invisible to diffing, scoring, label construction and merging.

OPERATIONS:
  StripMeta:       shallow copy without meta keys
  StableSerialize: canonical string form, used only for equality
  ChangedKeys:     sorted keys whose values differ between two bags
  Merge:           right-biased shallow merge of meta-free layers

SEE ALSO:
  - value.go:   the Value union these operate on
  - scoring.go: uses StableSerialize for nested values
  - engine.go:  uses ChangedKeys for "is default" and tie-breaking
*/
package generic

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// MetaPrefix marks bookkeeping keys excluded from comparison.
const MetaPrefix = "_"

// IsMetaKey reports whether key is a meta key.
func IsMetaKey(key string) bool { return strings.HasPrefix(key, MetaPrefix) }

// StripMeta returns a shallow copy of p without meta keys. nil stays nil.
func StripMeta(p Params) Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		if IsMetaKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Merge layers bags left to right; a later layer wins per key. Meta keys of
// every layer are dropped.
func Merge(layers ...Params) Params {
	out := Params{}
	for _, layer := range layers {
		for k, v := range layer {
			if IsMetaKey(k) {
				continue
			}
			out[k] = v
		}
	}
	return out
}

// ChangedKeys returns, sorted, every non-meta key whose serialized value
// differs between base and candidate. A key present on one side only counts
// as changed.
func ChangedKeys(base, candidate Params) []string {
	b, c := StripMeta(base), StripMeta(candidate)
	seen := make(map[string]struct{}, len(b)+len(c))
	for k := range b {
		seen[k] = struct{}{}
	}
	for k := range c {
		seen[k] = struct{}{}
	}

	changed := []string{}
	for k := range seen {
		if StableSerialize(b.Get(k)) != StableSerialize(c.Get(k)) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// =============================================================================
// STABLE SERIALIZATION
// =============================================================================

// StableSerialize renders v as canonical JSON with object keys sorted at
// every level. A container that appears inside itself renders as null.
// The missing Value renders as the empty string so that "absent" and
// "explicit null" compare as different.
func StableSerialize(v Value) string {
	if v.IsMissing() {
		return ""
	}
	var sb strings.Builder
	s := serializer{ancestors: map[uintptr]struct{}{}}
	s.write(&sb, v)
	return sb.String()
}

type serializer struct {
	ancestors map[uintptr]struct{}
}

func (s *serializer) write(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindMissing, KindNull:
		sb.WriteString("null")
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			sb.WriteString("null")
			return
		}
		sb.WriteString(strconv.FormatFloat(v.num, 'g', -1, 64))
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindString:
		sb.WriteString(quote(v.str))
	case KindObject:
		if v.obj == nil {
			sb.WriteString("null")
			return
		}
		id := reflect.ValueOf(v.obj).Pointer()
		if !s.enter(id) {
			sb.WriteString("null")
			return
		}
		sb.WriteByte('{')
		for i, k := range v.obj.Keys() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(quote(k))
			sb.WriteByte(':')
			s.write(sb, v.obj[k])
		}
		sb.WriteByte('}')
		delete(s.ancestors, id)
	case KindList:
		if len(v.list) == 0 {
			sb.WriteString("[]")
			return
		}
		id := reflect.ValueOf(v.list).Pointer()
		if !s.enter(id) {
			sb.WriteString("null")
			return
		}
		sb.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			s.write(sb, e)
		}
		sb.WriteByte(']')
		delete(s.ancestors, id)
	default:
		sb.WriteString("null")
	}
}

// enter records id as an ancestor; false means id is already on the path.
func (s *serializer) enter(id uintptr) bool {
	if _, ok := s.ancestors[id]; ok {
		return false
	}
	s.ancestors[id] = struct{}{}
	return true
}

func quote(str string) string {
	b, _ := json.Marshal(str)
	return string(b)
}
