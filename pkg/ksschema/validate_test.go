package ksschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLBasicSchema(t *testing.T) {
	doc := []byte(`
meta:
  id: magic_test
  endian: le
seq:
  - id: magic
    contents: [0x4D, 0x5A]
  - id: version
    type: u2
  - id: count
    type: u4
`)
	s, err := LoadYAML(doc)
	require.NoError(t, err)
	assert.Equal(t, "magic_test", s.Meta.ID)
	require.Len(t, s.Seq, 3)
	assert.Equal(t, "version", s.Seq[1].ID)
}

func TestLoadYAMLNormalizesSwitchType(t *testing.T) {
	doc := []byte(`
meta:
  id: switch_test
  endian: le
seq:
  - id: tc
    type: u1
  - id: d
    type:
      switch-on: tc
      cases:
        '1': u1
        '2': u2
`)
	s, err := LoadYAML(doc)
	require.NoError(t, err)
	sw, ok := s.Seq[1].Type.(*Switch)
	require.True(t, ok)
	assert.Equal(t, "tc", sw.SwitchOn)
	assert.Equal(t, "u1", sw.Cases["1"])
}

func TestValidateMissingRootID(t *testing.T) {
	s := &Schema{}
	res := Validate(s, false)
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
}

func TestValidateMutuallyExclusiveSize(t *testing.T) {
	s := &Schema{
		Meta: Meta{ID: "x"},
		Seq: []Field{
			{ID: "body", Type: "u1", Size: 4, SizeEOS: true},
		},
	}
	res := Validate(s, false)
	require.False(t, res.Valid)
}

func TestValidateUnknownEnumReference(t *testing.T) {
	s := &Schema{
		Meta: Meta{ID: "x"},
		Seq: []Field{
			{ID: "t", Type: "u1", Enum: "missing"},
		},
	}
	res := Validate(s, false)
	require.False(t, res.Valid)
}

func TestValidateStrictModeEscalatesWarnings(t *testing.T) {
	s := &Schema{
		Meta: Meta{ID: "CamelCaseID"},
	}
	loose := Validate(s, false)
	assert.True(t, loose.Valid)
	assert.NotEmpty(t, loose.Warnings)

	strict := Validate(s, true)
	assert.False(t, strict.Valid)
	assert.NotEmpty(t, strict.Errors)
}

func TestValidateMalformedRepeat(t *testing.T) {
	s := &Schema{
		Meta: Meta{ID: "x"},
		Seq: []Field{
			{ID: "vs", Type: "u1", Repeat: "bogus"},
		},
	}
	res := Validate(s, false)
	require.False(t, res.Valid)
}
