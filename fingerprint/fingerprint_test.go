package fingerprint

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sprintFields(name string) []Field {
	return []Field{
		F("name", name),
		F("description", "Kickoff <sprint> & review"),
		F("start_date", time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)),
		F("end_date", time.Date(2025, 1, 20, 17, 0, 0, 0, time.UTC)),
	}
}

func TestEncode_Golden(t *testing.T) {
	data, err := Encode(sprintFields("S1"))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "sprint_canonical", data)
}

func TestCompute_Deterministic(t *testing.T) {
	a := Compute("scrumchain/sprint/v1", sprintFields("S1"))
	b := Compute("scrumchain/sprint/v1", sprintFields("S1"))
	assert.Equal(t, a, b)
	assert.Len(t, a.String(), 64)
}

func TestCompute_FieldChangeChangesDigest(t *testing.T) {
	base := Compute("scrumchain/sprint/v1", sprintFields("S1"))
	renamed := Compute("scrumchain/sprint/v1", sprintFields("S2"))
	assert.NotEqual(t, base, renamed)

	moved := sprintFields("S1")
	moved[3] = F("end_date", time.Date(2025, 1, 21, 17, 0, 0, 0, time.UTC))
	assert.NotEqual(t, base, Compute("scrumchain/sprint/v1", moved))
}

func TestCompute_DomainSeparation(t *testing.T) {
	fields := []Field{F("name", "alpha"), F("description", "")}
	assert.NotEqual(t,
		Compute("scrumchain/team/v1", fields),
		Compute("scrumchain/backlog_item/v1", fields),
	)
}

func TestCompute_OrderIsExplicit(t *testing.T) {
	ab := Compute("d", []Field{F("a", "1"), F("b", "2")})
	ba := Compute("d", []Field{F("b", "2"), F("a", "1")})
	assert.NotEqual(t, ab, ba, "field order is part of the encoding")
}

func TestEncode_NormalizesUnicode(t *testing.T) {
	composed, err := Encode([]Field{F("name", "caf\u00e9")})
	require.NoError(t, err)
	decomposed, err := Encode([]Field{F("name", "cafe\u0301")})
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestEncode_TimesAreUTCSeconds(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	local := time.Date(2025, 1, 6, 16, 0, 0, 999, jakarta)

	data, err := Encode([]Field{F("at", local)})
	require.NoError(t, err)
	assert.Equal(t, `{"at":"2025-01-06T09:00:00Z"}`, string(data))
}

func TestEncode_Values(t *testing.T) {
	var missing *string
	data, err := Encode([]Field{
		F("i", 5),
		F("u", uint64(7)),
		F("b", true),
		F("n", missing),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"i":5,"u":7,"b":true,"n":null}`, string(data))
}

func TestEncode_RejectsMalformed(t *testing.T) {
	_, err := Encode([]Field{F("x", 1.5)})
	assert.Error(t, err)

	_, err = Encode([]Field{F("", "v")})
	assert.Error(t, err)

	_, err = Encode([]Field{F("a", "1"), F("a", "2")})
	assert.Error(t, err)

	_, err = Encode([]Field{F("m", map[string]string{})})
	assert.Error(t, err)
}

func TestCompute_PanicsOnProgrammerError(t *testing.T) {
	assert.Panics(t, func() { Compute("", nil) })
	assert.Panics(t, func() { Compute("d", []Field{F("x", 0.1)}) })
}

func TestParse(t *testing.T) {
	h := Compute("d", []Field{F("a", "1")})

	parsed, err := Parse(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = Parse("abcd")
	assert.Error(t, err)
	_, err = Parse("zz")
	assert.Error(t, err)
	assert.True(t, Hash{}.IsZero())
	assert.False(t, h.IsZero())
}
