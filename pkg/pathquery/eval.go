package pathquery

import (
	"sort"
	"strconv"
	"strings"
)

// Query parses and evaluates selector against the serialized discovery
// document. Every match carries its own ancestry chain, so a wildcard hit
// inside a nested array still resolves to the resource that owns it, not to
// the array itself. A document with no matching resources yields an empty
// slice and no error.
func Query(doc map[string]interface{}, selector string) ([]Match, error) {
	sel, err := Parse(selector)
	if err != nil {
		return nil, err
	}
	return sel.Eval(doc), nil
}

// Eval runs a pre-parsed selector against doc.
func (sel *Selector) Eval(doc map[string]interface{}) []Match {
	resources, _ := doc["resources"].([]interface{})

	var out []Match
	for i, node := range resources {
		res, ok := node.(map[string]interface{})
		if !ok {
			continue
		}
		if !sel.filter(res) {
			continue
		}

		steps := []Step{
			{Key: "resources", Container: doc},
			{Index: i, IsIndex: true, Container: resources},
		}
		if len(sel.projection) == 0 {
			out = append(out, Match{Value: res, steps: steps, resource: res})
			continue
		}
		project(res, sel.projection, steps, res, &out)
	}
	return out
}

func (sel *Selector) filter(res map[string]interface{}) bool {
	for _, pred := range sel.predicates {
		value, ok := lookup(res, pred.path)
		if !ok {
			// Absent fields fail the predicate, they never raise.
			return false
		}
		if !pred.eval(value) {
			return false
		}
	}
	return true
}

func (p predicate) eval(value interface{}) bool {
	switch p.op {
	case opEq:
		return literalEquals(value, p.literal)
	case opContains:
		s, ok := value.(string)
		return ok && strings.Contains(s, p.literal)
	case opMatch:
		s, ok := value.(string)
		return ok && p.re.MatchString(s)
	}
	return false
}

// literalEquals compares a document value against a selector literal.
// Matching is case-sensitive exact equality; numbers and booleans compare
// against the literal's parsed form.
func literalEquals(value interface{}, literal string) bool {
	switch v := value.(type) {
	case string:
		return v == literal
	case float64:
		f, err := strconv.ParseFloat(literal, 64)
		return err == nil && v == f
	case bool:
		b, err := strconv.ParseBool(literal)
		return err == nil && v == b
	case nil:
		return literal == "null"
	}
	return false
}

func lookup(node map[string]interface{}, path []segment) (interface{}, bool) {
	var current interface{} = node
	for _, seg := range path {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[seg.key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// project descends from value along the remaining segments, emitting one
// match per reached leaf. Wildcards fan out over array elements and over
// object values in sorted key order so results are reproducible.
func project(value interface{}, segs []segment, steps []Step, resource map[string]interface{}, out *[]Match) {
	if len(segs) == 0 {
		*out = append(*out, Match{Value: value, steps: steps, resource: resource})
		return
	}

	seg := segs[0]
	switch v := value.(type) {
	case map[string]interface{}:
		if seg.wildcard {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				project(v[k], segs[1:], extend(steps, Step{Key: k, Container: v}), resource, out)
			}
			return
		}
		child, ok := v[seg.key]
		if !ok {
			return
		}
		project(child, segs[1:], extend(steps, Step{Key: seg.key, Container: v}), resource, out)
	case []interface{}:
		if !seg.wildcard {
			return
		}
		for i, el := range v {
			project(el, segs[1:], extend(steps, Step{Index: i, IsIndex: true, Container: v}), resource, out)
		}
	}
}

// extend appends without sharing the backing array between sibling matches.
func extend(steps []Step, s Step) []Step {
	next := make([]Step, len(steps), len(steps)+1)
	copy(next, steps)
	return append(next, s)
}
