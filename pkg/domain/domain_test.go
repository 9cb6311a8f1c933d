package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// ----------------------
// Value Tests
// ----------------------
//

func TestValue_AccessorsRejectOtherKinds(t *testing.T) {
	values := []Value{
		Bool(true),
		Int(42),
		Double(1.5),
		String("hello"),
		MustJSON(`{"a":1}`),
	}

	for _, v := range values {
		_, okBool := v.AsBool()
		_, okInt := v.AsInt()
		_, okDouble := v.AsDouble()
		_, okString := v.AsString()
		_, okJSON := v.AsJSON()

		hits := 0
		for _, ok := range []bool{okBool, okInt, okDouble, okString, okJSON} {
			if ok {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "kind %s must expose exactly one accessor", v.Kind())
	}
}

func TestValue_NoNumericWidening(t *testing.T) {
	_, ok := Int(3).AsDouble()
	assert.False(t, ok)

	_, ok = Double(3).AsInt()
	assert.False(t, ok)
}

func TestValue_JSONRejectsInvalid(t *testing.T) {
	_, err := JSON([]byte(`{broken`))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestValue_JSONIsCopied(t *testing.T) {
	raw := []byte(`{"x":1}`)
	v, err := JSON(raw)
	require.NoError(t, err)

	raw[2] = 'y'
	out, ok := v.AsJSON()
	require.True(t, ok)
	assert.Equal(t, `{"x":1}`, string(out))
}

func TestValue_MarshalRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		wire string
	}{
		{"bool", Bool(true), `{"type":"bool","value":true}`},
		{"int", Int(9007199254740993), `{"type":"int","value":9007199254740993}`},
		{"double", Double(0.25), `{"type":"double","value":0.25}`},
		{"string", String("x"), `{"type":"string","value":"x"}`},
		{"json", MustJSON(`{"a":[1,2]}`), `{"type":"json","value":{"a":[1,2]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wire, string(data))

			var out Value
			require.NoError(t, json.Unmarshal(data, &out))
			assert.True(t, tt.in.Equal(out), "got %v", out)
		})
	}
}

func TestValue_UnmarshalRejectsFractionalInt(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`{"type":"int","value":1.5}`), &v)
	assert.Error(t, err)
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(KindInt, float64(7))
	require.NoError(t, err)
	i, ok := v.AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)

	_, err = FromAny(KindBool, "true")
	assert.Error(t, err)

	v, err = FromAny(KindInt, json.Number("10.0"))
	require.NoError(t, err)
	i, ok = v.AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(10), i)

	_, err = FromAny(KindInt, json.Number("10.5"))
	assert.Error(t, err)

	v, err = FromAny(KindJSON, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, KindJSON, v.Kind())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("boolean")
	require.NoError(t, err)
	assert.Equal(t, KindBool, k)

	_, err = ParseKind("date")
	assert.Error(t, err)
}

func TestSource_TextRoundTrip(t *testing.T) {
	for _, src := range []Source{SourceDefault, SourceOverride, SourceProvider, SourceCache} {
		type wire struct {
			Source Source `json:"source"`
		}
		b, err := json.Marshal(wire{Source: src})
		require.NoError(t, err)
		assert.Contains(t, string(b), src.String())

		var out wire
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, src, out.Source)
	}

	src, err := ParseSource("cache")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, src)

	_, err = ParseSource("REMOTE")
	assert.True(t, IsValidationError(err))
}

//
// ----------------------
// Experiment Tests
// ----------------------
//

func TestExperiment_Validate(t *testing.T) {
	exp := Experiment{
		Key: "exp1",
		Variants: []Variant{
			{Name: "control", Weight: 0.5},
			{Name: "treatment", Weight: 0.5},
		},
		ExposureType: ExposureOnAssignment,
	}
	require.NoError(t, exp.Validate())
}

func TestExperiment_Validate_DuplicateVariant(t *testing.T) {
	exp := Experiment{
		Key: "exp1",
		Variants: []Variant{
			{Name: "a", Weight: 0.5},
			{Name: "a", Weight: 0.5},
		},
	}
	assert.Error(t, exp.Validate())
}

func TestExperiment_Validate_WeightOutOfRange(t *testing.T) {
	exp := Experiment{
		Key:      "exp1",
		Variants: []Variant{{Name: "a", Weight: 1.5}},
	}
	assert.Error(t, exp.Validate())

	exp.Variants[0].Weight = -0.1
	assert.Error(t, exp.Validate())
}

func TestExperiment_Validate_BadTargeting(t *testing.T) {
	exp := Experiment{
		Key:       "exp1",
		Variants:  []Variant{{Name: "a", Weight: 1}},
		Targeting: All(RegionIn()),
	}
	assert.Error(t, exp.Validate())
}

func TestExperiment_ZeroWeightsAreValid(t *testing.T) {
	exp := Experiment{
		Key:      "exp1",
		Variants: []Variant{{Name: "a"}, {Name: "b"}},
	}
	require.NoError(t, exp.Validate())
	assert.Equal(t, 0.0, exp.TotalWeight())
}

func TestRule_JSON(t *testing.T) {
	rule := All(
		AppVersionGte("2.1.0"),
		RegionIn("US", "BR"),
		AttributeEquals("tier", "gold"),
	)

	data, err := json.Marshal(rule)
	require.NoError(t, err)

	var out Rule
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, RuleAll, out.Type)
	require.Len(t, out.Rules, 3)
	assert.Equal(t, []string{"US", "BR"}, out.Rules[1].Regions)
	require.NoError(t, out.Validate())
}

//
// ----------------------
// Snapshot Tests
// ----------------------
//

func TestNewSnapshot_CopiesInput(t *testing.T) {
	flags := map[string]Value{"a": Bool(true)}
	exps := map[string]Experiment{
		"exp": {Variants: []Variant{{Name: "v", Weight: 1}}},
	}

	s := NewSnapshot(flags, exps, WithRevision("r1"), WithTTL(time.Minute))

	flags["a"] = Bool(false)
	exps["exp"].Variants[0].Name = "mutated"

	v, ok := s.Flag("a")
	require.True(t, ok)
	b, _ := v.AsBool()
	assert.True(t, b)

	e, ok := s.Experiment("exp")
	require.True(t, ok)
	assert.Equal(t, "exp", e.Key)
	assert.Equal(t, "v", e.Variants[0].Name)
	assert.Equal(t, "r1", s.Revision)
}

func TestSnapshot_IsFresh(t *testing.T) {
	now := time.Now()
	s := NewSnapshot(nil, nil, WithFetchedAt(now.Add(-2*time.Minute)), WithTTL(time.Minute))
	assert.False(t, s.IsFresh(now))

	s = NewSnapshot(nil, nil, WithFetchedAt(now.Add(-30*time.Second)), WithTTL(time.Minute))
	assert.True(t, s.IsFresh(now))

	s = NewSnapshot(nil, nil, WithFetchedAt(now.Add(-time.Hour)))
	assert.True(t, s.IsFresh(now), "zero ttl never expires")
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	s := NewSnapshot(
		map[string]Value{"flag1": Bool(true), "limit": Int(10)},
		map[string]Experiment{
			"exp1": {
				Variants:  []Variant{{Name: "control", Weight: 1, Payload: String("blue")}},
				Targeting: RegionIn("US"),
			},
		},
		WithRevision("7"),
		WithTTL(5*time.Minute),
	)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var out Snapshot
	require.NoError(t, json.Unmarshal(data, &out))
	require.NoError(t, out.Validate())

	v, ok := out.Flag("limit")
	require.True(t, ok)
	assert.True(t, Int(10).Equal(v))
	assert.Equal(t, 5*time.Minute, out.TTL)

	e, ok := out.Experiment("exp1")
	require.True(t, ok)
	assert.True(t, String("blue").Equal(e.Variants[0].Payload))
}

//
// ----------------------
// Context & Status Tests
// ----------------------
//

func TestContext_WithAttributeDoesNotMutateReceiver(t *testing.T) {
	base := NewContext("u1").WithAttribute("a", 1)
	derived := base.WithAttribute("b", 2)

	_, ok := base.Attribute("b")
	assert.False(t, ok)

	v, ok := derived.Attribute("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestContext_BucketingID(t *testing.T) {
	assert.Equal(t, "u", Context{UserID: "u", DeviceID: "d"}.BucketingID())
	assert.Equal(t, "d", Context{DeviceID: "d"}.BucketingID())
	assert.Equal(t, "", Context{}.BucketingID())
	assert.True(t, Context{}.IsZero())
}

func TestFlagStatus_HealthAndFreshness(t *testing.T) {
	assert.False(t, FlagStatus{Source: SourceDefault}.IsHealthy())
	assert.True(t, FlagStatus{Source: SourceCache}.IsHealthy())
	assert.True(t, FlagStatus{Source: SourceOverride}.IsHealthy())

	assert.False(t, FlagStatus{Source: SourceOverride}.IsFresh())
	assert.False(t, FlagStatus{Source: SourceCache}.IsFresh())
	assert.True(t, FlagStatus{Source: SourceProvider, Age: time.Second, TTL: time.Minute}.IsFresh())
	assert.False(t, FlagStatus{Source: SourceProvider, Age: time.Hour, TTL: time.Minute}.IsFresh())
}

//
// ----------------------
// Errors Tests
// ----------------------
//

func TestProviderErrorKinds(t *testing.T) {
	cause := errors.New("boom")

	err := error(NewNetworkError("remote", cause))
	assert.True(t, IsProviderError(err))
	assert.True(t, IsNetworkError(err))
	assert.False(t, IsParseError(err))
	assert.ErrorIs(t, err, cause)

	wrapped := errors.Join(errors.New("ctx"), NewParseError("file", cause))
	assert.True(t, IsParseError(wrapped))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "configuration error [app_key]: must not be empty",
		NewConfigurationError("app_key", "must not be empty").Error())
	assert.Equal(t, "illegal state: BoolSync called while bootstrapping",
		NewIllegalStateError("BoolSync", "bootstrapping").Error())
	assert.Equal(t, "flag not found: abc", NewNotFoundError("flag", "abc").Error())
	assert.Equal(t, "flag x holds int, requested string",
		NewTypeMismatchError("x", KindString, KindInt).Error())
}
