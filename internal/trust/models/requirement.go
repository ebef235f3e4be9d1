package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	dErrors "trustline/pkg/domain-errors"
)

type RequirementKind string

const (
	RequirementNumber RequirementKind = "number"
	RequirementLevel  RequirementKind = "level"
)

// Requirement is the gating value attached to a feature: either a literal
// threshold or a reference to a named TrustLevel. Build it with Number or
// Level. A Requirement decoded from malformed JSON keeps an invalid kind so
// resolution fails loudly instead of silently gating at 0.
type Requirement struct {
	kind  RequirementKind
	value int
	level string
	raw   json.RawMessage
	// declared is the "type" field of an object that failed to decode.
	declared RequirementKind
}

func Number(v int) *Requirement {
	return &Requirement{kind: RequirementNumber, value: v}
}

func Level(name string) *Requirement {
	return &Requirement{kind: RequirementLevel, level: name}
}

func (r *Requirement) Kind() RequirementKind { return r.kind }

// NumberValue is the literal threshold. Only meaningful for RequirementNumber.
func (r *Requirement) NumberValue() int { return r.value }

// LevelName is the referenced level. Only meaningful for RequirementLevel.
func (r *Requirement) LevelName() string { return r.level }

// Raw returns the undecodable input for a requirement of unknown shape.
func (r *Requirement) Raw() json.RawMessage { return r.raw }

func (r *Requirement) String() string {
	switch r.kind {
	case RequirementNumber:
		return fmt.Sprintf("number(%d)", r.value)
	case RequirementLevel:
		return fmt.Sprintf("level(%q)", r.level)
	default:
		return fmt.Sprintf("invalid(%s)", string(r.raw))
	}
}

// Validate applies the configuration-write rules: number must be
// non-negative and level must name something after trimming.
func (r *Requirement) Validate() error {
	switch r.kind {
	case RequirementNumber:
		if r.value < 0 {
			return dErrors.New(dErrors.CodeInvalidRequirement, "Trust requirement value must be a non-negative number")
		}
		return nil
	case RequirementLevel:
		if strings.TrimSpace(r.level) == "" {
			return dErrors.New(dErrors.CodeInvalidRequirement, "Trust requirement level name must be a non-empty string")
		}
		return nil
	}
	switch r.declared {
	case RequirementNumber:
		return dErrors.New(dErrors.CodeInvalidRequirement, "Trust requirement value must be a non-negative number")
	case RequirementLevel:
		return dErrors.New(dErrors.CodeInvalidRequirement, "Trust requirement level name must be a non-empty string")
	default:
		return dErrors.New(dErrors.CodeInvalidRequirement, `Trust requirement type must be "number" or "level"`)
	}
}

type requirementJSON struct {
	Type  RequirementKind `json:"type"`
	Value json.RawMessage `json:"value"`
}

// UnmarshalJSON normalizes the legacy bare-number form to Number(n) and
// accepts {"type":"number","value":n} or {"type":"level","value":"name"}.
// Any other well-formed JSON decodes to an invalid requirement.
func (r *Requirement) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*r = Requirement{raw: append(json.RawMessage(nil), trimmed...)}

	if n, ok := decodeInt(trimmed); ok {
		*r = *Number(n)
		return nil
	}

	var obj requirementJSON
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &obj) != nil {
		return nil
	}
	r.declared = obj.Type
	switch obj.Type {
	case RequirementNumber:
		if n, ok := decodeInt(obj.Value); ok {
			*r = *Number(n)
		}
	case RequirementLevel:
		var name string
		if json.Unmarshal(obj.Value, &name) == nil {
			*r = *Level(name)
		}
	}
	return nil
}

func (r *Requirement) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case RequirementNumber:
		return json.Marshal(requirementOut{Type: RequirementNumber, Value: r.value})
	case RequirementLevel:
		return json.Marshal(requirementOut{Type: RequirementLevel, Value: r.level})
	default:
		if len(r.raw) > 0 {
			return r.raw, nil
		}
		return []byte("null"), nil
	}
}

type requirementOut struct {
	Type  RequirementKind `json:"type"`
	Value any             `json:"value"`
}

// ParseRequirement decodes and validates raw configuration input. It is the
// strict counterpart of UnmarshalJSON, used when a requirement is written.
func ParseRequirement(raw json.RawMessage) (*Requirement, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, dErrors.New(dErrors.CodeInvalidRequirement, "Trust requirement must be valid JSON")
	}
	var req Requirement
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidRequirement, "Trust requirement must be valid JSON")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// decodeInt accepts a JSON number with no fractional part.
func decodeInt(data []byte) (int, bool) {
	if len(data) == 0 {
		return 0, false
	}
	c := data[0]
	if c != '-' && (c < '0' || c > '9') {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
