package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Flag documents are YAML or JSON (JSON being a YAML subset):
//
//	revision: "42"
//	ttl: 5m
//	flags:
//	  new_checkout: true
//	  max_items: {type: int, value: 10}
//	experiments:
//	  checkout_color:
//	    exposure_type: on_assignment
//	    targeting: {type: region_in, regions: [US, BR]}
//	    variants:
//	      - {name: control, weight: 0.5, payload: blue}
//	      - {name: treatment, weight: 0.5, payload: green}
//
// A flag or payload is either a typed {type, value} object or a bare scalar
// whose kind is inferred. Other objects and arrays become json values.

type document struct {
	Revision    revision                      `json:"revision"`
	TTL         json.RawMessage               `json:"ttl"`
	Signature   string                        `json:"signature"`
	Flags       map[string]json.RawMessage    `json:"flags"`
	Experiments map[string]documentExperiment `json:"experiments"`
}

type documentExperiment struct {
	Key          string              `json:"key"`
	ExposureType domain.ExposureType `json:"exposure_type"`
	Targeting    *domain.Rule        `json:"targeting"`
	Variants     []documentVariant   `json:"variants"`
}

type documentVariant struct {
	Name    string          `json:"name"`
	Weight  float64         `json:"weight"`
	Payload json.RawMessage `json:"payload"`
}

// ParseDocument decodes a flag document into a validated snapshot. opts are
// applied after the document's own revision and TTL.
func ParseDocument(data []byte, opts ...domain.SnapshotOption) (*domain.Snapshot, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if tree == nil {
		return domain.NewSnapshot(nil, nil, opts...), nil
	}

	normalized, err := json.Marshal(preserveFloats(tree))
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	ttl, err := parseTTL(doc.TTL)
	if err != nil {
		return nil, err
	}

	flags := make(map[string]domain.Value, len(doc.Flags))
	for key, raw := range doc.Flags {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("flag %s: %w", key, err)
		}
		flags[key] = v
	}

	experiments := make(map[string]domain.Experiment, len(doc.Experiments))
	for key, de := range doc.Experiments {
		exp := domain.Experiment{
			Key:          de.Key,
			ExposureType: de.ExposureType,
			Targeting:    de.Targeting,
			Variants:     make([]domain.Variant, 0, len(de.Variants)),
		}
		for _, dv := range de.Variants {
			variant := domain.Variant{Name: dv.Name, Weight: dv.Weight}
			if len(dv.Payload) > 0 && !bytes.Equal(dv.Payload, []byte("null")) {
				payload, err := decodeValue(dv.Payload)
				if err != nil {
					return nil, fmt.Errorf("experiment %s variant %s: %w", key, dv.Name, err)
				}
				variant.Payload = payload
			}
			exp.Variants = append(exp.Variants, variant)
		}
		experiments[key] = exp
	}

	all := []domain.SnapshotOption{
		domain.WithRevision(string(doc.Revision)),
		domain.WithTTL(ttl),
		domain.WithSignature(doc.Signature),
	}
	snap := domain.NewSnapshot(flags, experiments, append(all, opts...)...)

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// revision accepts both quoted and bare numeric revisions.
type revision string

func (r *revision) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = revision(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid revision %s", data)
	}
	*r = revision(n.String())
	return nil
}

// parseTTL accepts a Go duration string or a number of seconds.
func parseTTL(raw json.RawMessage) (time.Duration, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
		}
		return d, nil
	}

	seconds, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %s", raw)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func decodeValue(raw json.RawMessage) (domain.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return domain.Value{}, err
	}

	switch p := payload.(type) {
	case bool:
		return domain.Bool(p), nil
	case string:
		return domain.String(p), nil
	case json.Number:
		if !strings.ContainsAny(p.String(), ".eE") {
			if i, err := p.Int64(); err == nil {
				return domain.Int(i), nil
			}
		}
		f, err := p.Float64()
		if err != nil {
			return domain.Value{}, err
		}
		return domain.Double(f), nil
	case map[string]any:
		if isTyped(p) {
			var v domain.Value
			if err := json.Unmarshal(raw, &v); err != nil {
				return domain.Value{}, err
			}
			return v, nil
		}
		return domain.JSON(raw)
	case nil:
		return domain.Value{}, domain.NewValidationError("null value")
	default:
		return domain.JSON(raw)
	}
}

// yamlFloat keeps a float scalar a float through JSON normalization, so
// 1.0 is written as 1.0 rather than 1.
type yamlFloat float64

func (f yamlFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported number %v", v)
	}
	out := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(out, ".eE") {
		out += ".0"
	}
	return []byte(out), nil
}

func preserveFloats(node any) any {
	switch n := node.(type) {
	case float64:
		return yamlFloat(n)
	case map[string]any:
		for k, v := range n {
			n[k] = preserveFloats(v)
		}
		return n
	case []any:
		for i, v := range n {
			n[i] = preserveFloats(v)
		}
		return n
	default:
		return node
	}
}

func isTyped(obj map[string]any) bool {
	if len(obj) != 2 {
		return false
	}
	kind, ok := obj["type"].(string)
	if !ok {
		return false
	}
	if _, ok := obj["value"]; !ok {
		return false
	}
	_, err := domain.ParseKind(kind)
	return err == nil
}
