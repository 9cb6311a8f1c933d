package domain

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ExposureType tells analytics when an assignment counts as seen. The engine
// carries it through untouched.
type ExposureType string

const (
	ExposureOnAssignment ExposureType = "on_assignment"
	ExposureOnImpression ExposureType = "on_impression"
)

// Variant is one arm of an experiment. Names are unique within an
// experiment and Weight is a share in [0, 1].
type Variant struct {
	Name    string  `json:"name" validate:"required"`
	Weight  float64 `json:"weight" validate:"gte=0,lte=1"`
	Payload Value   `json:"payload"`
}

// Experiment is a weighted set of variants, optionally gated by targeting.
// Variant order is significant: it is the bucketing order.
type Experiment struct {
	Key          string       `json:"key" validate:"required"`
	Variants     []Variant    `json:"variants" validate:"unique=Name,dive"`
	Targeting    *Rule        `json:"targeting,omitempty"`
	ExposureType ExposureType `json:"exposure_type,omitempty" validate:"omitempty,oneof=on_assignment on_impression"`
}

// Validate checks structural invariants of the definition. Weights are not
// required to sum to 1.
func (e Experiment) Validate() error {
	if err := validate.Struct(e); err != nil {
		return NewValidationErrorWithCause("invalid experiment "+e.Key, err)
	}
	if err := e.Targeting.Validate(); err != nil {
		return NewValidationErrorWithCause("invalid targeting for experiment "+e.Key, err)
	}
	return nil
}

// TotalWeight returns the sum of all variant weights.
func (e Experiment) TotalWeight() float64 {
	total := 0.0
	for _, v := range e.Variants {
		total += v.Weight
	}
	return total
}

// Variant returns the variant with the given name.
func (e Experiment) Variant(name string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// Assignment is the resolved outcome of bucketing a context into an
// experiment.
type Assignment struct {
	Key     string `json:"key"`
	Variant string `json:"variant"`
	Payload Value  `json:"payload"`
}
