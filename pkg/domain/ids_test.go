package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "trustline/pkg/domain-errors"
)

func TestParseIDs(t *testing.T) {
	parsers := map[string]func(string) error{
		"community_id":   func(s string) error { _, err := ParseCommunityID(s); return err },
		"user_id":        func(s string) error { _, err := ParseUserID(s); return err },
		"trust_level_id": func(s string) error { _, err := ParseTrustLevelID(s); return err },
		"trust_event_id": func(s string) error { _, err := ParseTrustEventID(s); return err },
	}
	rejected := map[string]string{
		"empty":          "",
		"blank":          "  \t",
		"nil uuid":       uuid.Nil.String(),
		"community name": "riverside-gardeners",
		"truncated":      "550e8400-e29b-41d4-a716",
		"embedded nul":   "550e8400\x00e29b-41d4-a716-446655440000",
	}

	for field, parse := range parsers {
		t.Run(field, func(t *testing.T) {
			for name, input := range rejected {
				err := parse(input)
				require.Error(t, err, name)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), name)
				assert.Contains(t, err.Error(), field, name)
			}
			assert.NoError(t, parse("550E8400-E29B-41D4-A716-446655440000"), "case-insensitive")
		})
	}
}

func TestTypedIDs(t *testing.T) {
	raw := uuid.New()
	cid, err := ParseCommunityID(raw.String())
	require.NoError(t, err)
	assert.Equal(t, CommunityID(raw), cid)
	assert.Equal(t, raw.String(), cid.String())
	assert.False(t, cid.IsNil())
	assert.True(t, CommunityID{}.IsNil())
	assert.True(t, UserID{}.IsNil())

	assert.NotEqual(t, NewUserID(), NewUserID())
	assert.False(t, NewTrustLevelID().IsNil())
}

func FuzzParseUserID(f *testing.F) {
	for _, seed := range []string{"", "550e8400-e29b-41d4-a716-446655440000", uuid.Nil.String(), "{550e8400-e29b-41d4-a716-446655440000}"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, input string) {
		userID, err := ParseUserID(input)
		_, communityErr := ParseCommunityID(input)
		if (err == nil) != (communityErr == nil) {
			t.Fatalf("user and community parsers disagree on %q", input)
		}
		if err != nil {
			return
		}
		if userID.IsNil() {
			t.Fatalf("accepted the nil uuid from %q", input)
		}
		again, err := ParseUserID(userID.String())
		if err != nil || again != userID {
			t.Fatalf("canonical form of %q does not round-trip", input)
		}
	})
}
