package domain

import "fmt"

// RuleType identifies a targeting predicate.
type RuleType string

const (
	RuleAppVersionGte    RuleType = "app_version_gte"
	RuleRegionIn         RuleType = "region_in"
	RuleAttributeEquals  RuleType = "attribute_equals"
	RuleAttributeMatches RuleType = "attribute_matches"
	RuleAll              RuleType = "all"
)

// Rule is a node of a targeting tree. Leaves use the fields matching their
// Type; RuleAll combines Rules with logical AND. A nil *Rule matches every
// context.
type Rule struct {
	Type      RuleType `json:"type"`
	Version   string   `json:"version,omitempty"`
	Regions   []string `json:"regions,omitempty"`
	Attribute string   `json:"attribute,omitempty"`
	Value     any      `json:"value,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Rules     []Rule   `json:"rules,omitempty"`
}

// AppVersionGte matches contexts whose app version is >= version.
func AppVersionGte(version string) *Rule {
	return &Rule{Type: RuleAppVersionGte, Version: version}
}

// RegionIn matches contexts whose region is one of regions.
func RegionIn(regions ...string) *Rule {
	cp := make([]string, len(regions))
	copy(cp, regions)
	return &Rule{Type: RuleRegionIn, Regions: cp}
}

// AttributeEquals matches contexts where Attributes[attribute] equals value.
// Numbers compare by value across Go numeric types; other values must have
// the same type, so "3" does not equal 3.
func AttributeEquals(attribute string, value any) *Rule {
	return &Rule{Type: RuleAttributeEquals, Attribute: attribute, Value: value}
}

// AttributeMatches matches contexts where Attributes[attribute] matches the
// regular expression pattern.
func AttributeMatches(attribute, pattern string) *Rule {
	return &Rule{Type: RuleAttributeMatches, Attribute: attribute, Pattern: pattern}
}

// All matches when every child matches. Nil children are skipped.
func All(rules ...*Rule) *Rule {
	children := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil {
			children = append(children, *r)
		}
	}
	return &Rule{Type: RuleAll, Rules: children}
}

// Validate checks that the rule tree is well formed.
func (r *Rule) Validate() error {
	if r == nil {
		return nil
	}

	switch r.Type {
	case RuleAppVersionGte:
		if r.Version == "" {
			return NewValidationError("app_version_gte requires a version")
		}
	case RuleRegionIn:
		if len(r.Regions) == 0 {
			return NewValidationError("region_in requires at least one region")
		}
	case RuleAttributeEquals:
		if r.Attribute == "" {
			return NewValidationError("attribute_equals requires an attribute")
		}
	case RuleAttributeMatches:
		if r.Attribute == "" || r.Pattern == "" {
			return NewValidationError("attribute_matches requires an attribute and a pattern")
		}
	case RuleAll:
		for i := range r.Rules {
			if err := r.Rules[i].Validate(); err != nil {
				return err
			}
		}
	default:
		return NewValidationError(fmt.Sprintf("unknown rule type %q", r.Type))
	}

	return nil
}
