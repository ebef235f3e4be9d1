package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
)

func TestRecompute(t *testing.T) {
	assert.Equal(t, 0, Recompute(0, 0))
	assert.Equal(t, 1, Recompute(1, 0))
	assert.Equal(t, 6, Recompute(1, 5))
	assert.Equal(t, -2, Recompute(1, -3), "negative grants are not clamped")
}

func TestRequirementUnmarshal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantKind  RequirementKind
		wantValue int
		wantLevel string
	}{
		{"legacy bare number", `15`, RequirementNumber, 15, ""},
		{"legacy integral float", `20.0`, RequirementNumber, 20, ""},
		{"tagged number", `{"type":"number","value":20}`, RequirementNumber, 20, ""},
		{"tagged level", `{"type":"level","value":"Trusted"}`, RequirementLevel, 0, "Trusted"},
		{"unknown type", `{"type":"role","value":"x"}`, "", 0, ""},
		{"number with string value", `{"type":"number","value":"10"}`, "", 0, ""},
		{"fractional number", `12.5`, "", 0, ""},
		{"string", `"Trusted"`, "", 0, ""},
		{"array", `[1,2]`, "", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Requirement
			require.NoError(t, json.Unmarshal([]byte(tt.input), &r))
			assert.Equal(t, tt.wantKind, r.Kind())
			assert.Equal(t, tt.wantValue, r.NumberValue())
			assert.Equal(t, tt.wantLevel, r.LevelName())
		})
	}
}

func TestRequirementNullDecodesToNil(t *testing.T) {
	var cfg struct {
		Req *Requirement `json:"req"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"req":null}`), &cfg))
	assert.Nil(t, cfg.Req)
}

func TestRequirementMarshalNormalizesLegacy(t *testing.T) {
	var r Requirement
	require.NoError(t, json.Unmarshal([]byte(`15`), &r))
	out, err := json.Marshal(&r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"number","value":15}`, string(out))
}

func TestRequirementValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"valid number", `{"type":"number","value":0}`, ""},
		{"valid level", `{"type":"level","value":"Stable"}`, ""},
		{"valid legacy", `7`, ""},
		{"negative number", `{"type":"number","value":-1}`, "non-negative"},
		{"blank level", `{"type":"level","value":"   "}`, "non-empty"},
		{"non-string level", `{"type":"level","value":5}`, "non-empty"},
		{"bad type", `{"type":"bogus","value":1}`, `"number" or "level"`},
		{"malformed", `{"type":`, "valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequirement(json.RawMessage(tt.raw))
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.NotNil(t, req)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRequirement))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("null is no requirement", func(t *testing.T) {
		req, err := ParseRequirement(json.RawMessage(`null`))
		require.NoError(t, err)
		assert.Nil(t, req)
	})
}

func TestFeatures(t *testing.T) {
	require.Len(t, Features, 21)

	seen := map[FeatureKey]bool{}
	for _, f := range Features {
		assert.False(t, seen[f.Key], "duplicate feature %s", f.Key)
		seen[f.Key] = true
		assert.Equal(t, "trust_"+f.Role, f.TrustRole)
		assert.NotEmpty(t, f.Label)
		assert.NotEmpty(t, f.Permission)
	}

	award, ok := LookupFeature(FeatureTrustAward)
	require.True(t, ok)
	assert.Equal(t, "minTrustToAwardTrust", award.ConfigField)
	assert.Equal(t, "can_award_trust", award.Permission)

	f, ok := FeatureForPermission("can_manage_forum")
	require.True(t, ok)
	assert.Equal(t, FeatureForumModerate, f.Key)
}

func TestTrustEventDeltaFor(t *testing.T) {
	a, b := id.NewUserID(), id.NewUserID()
	ev := TrustEvent{SubjectUserIDA: &a, SubjectUserIDB: &b, PointsDeltaA: 2, PointsDeltaB: 3}

	assert.Equal(t, 2, ev.DeltaFor(a))
	assert.Equal(t, 3, ev.DeltaFor(b))
	assert.Equal(t, 0, ev.DeltaFor(id.NewUserID()))

	self := TrustEvent{SubjectUserIDA: &a, SubjectUserIDB: &a, PointsDeltaA: 1, PointsDeltaB: 1}
	assert.Equal(t, 2, self.DeltaFor(a), "user on both sides gets both deltas")
}

func TestNewPage(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: DefaultPageLimit}, NewPage(0, 0))
	assert.Equal(t, Page{Page: 3, Limit: 100}, NewPage(3, 500))
	assert.Equal(t, 40, NewPage(3, 20).Offset())
}

func TestPageLiteralIsClamped(t *testing.T) {
	cases := []struct {
		name   string
		page   Page
		offset int
		size   int
	}{
		{"zero value", Page{}, 0, DefaultPageLimit},
		{"page zero", Page{Page: 0, Limit: 10}, 0, 10},
		{"negative page", Page{Page: -3, Limit: 10}, 0, 10},
		{"negative limit", Page{Page: 2, Limit: -5}, DefaultPageLimit, DefaultPageLimit},
		{"oversized limit", Page{Page: 2, Limit: 1000}, MaxPageLimit, MaxPageLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.offset, tc.page.Offset())
			assert.Equal(t, tc.size, tc.page.Size())
		})
	}
}
