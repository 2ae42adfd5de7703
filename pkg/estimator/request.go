package estimator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/HatiCode/corecast/pkg/budget"
	"github.com/HatiCode/corecast/pkg/scaling"
)

// ErrMalformedRequest is returned for requests that cannot be decoded or
// that carry out-of-range options.
var ErrMalformedRequest = errors.New("malformed estimate request")

// DefaultMaxDegree is used when a request does not set maxDegree.
const DefaultMaxDegree = scaling.MaxSupportedDegree

// maxRequestBytes bounds the size of a decoded request body.
const maxRequestBytes = 1 << 20

// EstimateRequest is the wire form of an estimation, shared by the HTTP
// and gRPC transports.
type EstimateRequest struct {
	Observations  []scaling.Observation `json:"observations"`
	TargetSize    float64               `json:"targetSize"`
	Cores         int                   `json:"cores"`
	Efficiency    float64               `json:"efficiency,omitempty"`
	Runs          int                   `json:"runs,omitempty"`
	Factors       []budget.SafetyFactor `json:"factors,omitempty"`
	MaxDegree     *int                  `json:"maxDegree,omitempty"`
	MinRSquared   float64               `json:"minRSquared,omitempty"`
	RangeMultiple float64               `json:"rangeMultiple,omitempty"`
	SerialTimings bool                  `json:"serialTimings,omitempty"`

	// StrictRange turns an extrapolation range warning into a failure.
	StrictRange bool `json:"strictRange,omitempty"`
}

// DecodeRequest reads one JSON EstimateRequest from r. Unknown fields are
// rejected.
func DecodeRequest(r io.Reader) (EstimateRequest, error) {
	dec := json.NewDecoder(io.LimitReader(r, maxRequestBytes))
	dec.DisallowUnknownFields()

	var req EstimateRequest
	if err := dec.Decode(&req); err != nil {
		return EstimateRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return req, nil
}

// ToInput converts the request into a budget.Input. Runs defaults to 1 and
// MaxDegree to DefaultMaxDegree when omitted. Semantic checks (observation
// values, factors, hardware) are left to the estimation itself.
func (r EstimateRequest) ToInput() (budget.Input, error) {
	maxDegree := DefaultMaxDegree
	if r.MaxDegree != nil {
		maxDegree = *r.MaxDegree
	}
	if maxDegree < 0 || maxDegree > scaling.MaxSupportedDegree {
		return budget.Input{}, fmt.Errorf("%w: maxDegree must be in [0, %d], got %d",
			ErrMalformedRequest, scaling.MaxSupportedDegree, maxDegree)
	}
	if r.MinRSquared < 0 || r.MinRSquared > 1 {
		return budget.Input{}, fmt.Errorf("%w: minRSquared must be in [0, 1], got %v", ErrMalformedRequest, r.MinRSquared)
	}
	if r.RangeMultiple < 0 {
		return budget.Input{}, fmt.Errorf("%w: rangeMultiple must be >= 0, got %v", ErrMalformedRequest, r.RangeMultiple)
	}

	runs := r.Runs
	if runs == 0 {
		runs = 1
	}

	factors := make([]budget.SafetyFactor, len(r.Factors))
	for i, f := range r.Factors {
		if f.Name == "" {
			f.Name = fmt.Sprintf("factor%d", i+1)
		}
		factors[i] = f
	}

	return budget.Input{
		Series:        append(scaling.Series(nil), r.Observations...),
		TargetSize:    r.TargetSize,
		Hardware:      budget.HardwareProfile{Cores: r.Cores, Efficiency: r.Efficiency},
		RunCount:      runs,
		Factors:       factors,
		MaxDegree:     maxDegree,
		MinRSquared:   r.MinRSquared,
		RangeMultiple: r.RangeMultiple,
		SerialTimings: r.SerialTimings,
	}, nil
}
