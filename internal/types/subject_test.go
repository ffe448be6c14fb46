package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject_IDRoundTrip(t *testing.T) {
	subjects := []Subject{
		Universe,
		NameSubject("Run"),
		UnitSubject("pkg/a.go"),
		{Kind: SubjectMethod, Unit: "pkg/a.go", Name: "Server.Start"},
		{Kind: SubjectField, Unit: "https://example.com/x#y.go", Name: "Base.Name"},
		NameSubject("operator#plus"),
		NameSubject(`a\#b#`),
		{Kind: SubjectType, Unit: `c:\src\a.go`, Name: "x:y"},
		{Kind: SubjectUnknown, Unit: "a.go", Name: "X"},
		{Kind: SubjectKind(200), Unit: "a.go", Name: "Y"},
	}
	for _, s := range subjects {
		t.Run(s.ID(), func(t *testing.T) {
			parsed, ok := ParseSubjectID(s.ID())
			require.True(t, ok)
			assert.Equal(t, s, parsed)
		})
	}
}

func TestSubject_ID(t *testing.T) {
	assert.Equal(t, "universe:#", Universe.ID())
	assert.Equal(t, "name:#Run", NameSubject("Run").ID())
	assert.Equal(t, "function:a.go#main", Subject{Kind: SubjectFunction, Unit: "a.go", Name: "main"}.ID())
	assert.Equal(t, `name:#operator\#plus`, NameSubject("operator#plus").ID())
	assert.NotEqual(t, NameSubject("a#b").ID(), Subject{Kind: SubjectName, Unit: "a", Name: "b"}.ID())
}

func TestParseSubjectID_Rejects(t *testing.T) {
	for _, id := range []string{
		"",
		"Run",
		"#Run",
		"bogus:a.go#X",
		"unknown:#",
		"function:a.go",
		`function:a.go#x#y`,
		`function:a.go#x\`,
		`function:a\q.go#x`,
		"SubjectKind(3):a.go#X",
		"SubjectKind(0200):a.go#X",
		"universe:a.go#",
		"universe:#X",
	} {
		_, ok := ParseSubjectID(id)
		assert.False(t, ok, id)
	}
}

func TestSubject_String(t *testing.T) {
	assert.Equal(t, "<universe>", Universe.String())
	assert.Equal(t, "name:Run", NameSubject("Run").String())
	assert.Equal(t, "type Config (cfg.go)", Subject{Kind: SubjectType, Unit: "cfg.go", Name: "Config"}.String())
	assert.True(t, Subject{}.IsZero())
	assert.False(t, Universe.IsZero())
}

func TestSubjectKind(t *testing.T) {
	for k := SubjectUniverse; k <= SubjectField; k++ {
		parsed, ok := ParseSubjectKind(k.String())
		require.True(t, ok, k.String())
		assert.Equal(t, k, parsed)
	}
	parsed, ok := ParseSubjectKind("unknown")
	assert.True(t, ok)
	assert.Equal(t, SubjectUnknown, parsed)

	assert.Equal(t, "SubjectKind(200)", SubjectKind(200).String())
	parsed, ok = ParseSubjectKind("SubjectKind(200)")
	assert.True(t, ok)
	assert.Equal(t, SubjectKind(200), parsed)

	_, ok = ParseSubjectKind("bogus")
	assert.False(t, ok)
}
