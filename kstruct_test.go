package kstruct

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaitai-rt/kstruct/pkg/ksvalue"
)

const testSchema = `meta:
  id: test_format
  endian: le
seq:
  - id: magic
    contents: [0x4B, 0x42, 0x49, 0x4E]
  - id: version
    type: u2
  - id: message_len
    type: u1
  - id: message
    type: str
    size: message_len
    encoding: UTF-8
`

func testData() []byte {
	return []byte{
		0x4B, 0x42, 0x49, 0x4E, // magic: "KBIN"
		0x01, 0x00, // version: 1
		0x05,                         // message_len: 5
		0x48, 0x65, 0x6C, 0x6C, 0x6F, // message: "Hello"
	}
}

func TestParseDecodesAgainstYAMLSchema(t *testing.T) {
	root, err := Parse([]byte(testSchema), testData())
	require.NoError(t, err)

	version, ok := root.Field("version")
	require.True(t, ok)
	assert.Equal(t, ksvalue.NewInt(1), version)

	msg, ok := root.Field("message")
	require.True(t, ok)
	assert.Equal(t, ksvalue.NewText("Hello"), msg)
}

func TestParseRejectsInvalidSchemaByDefault(t *testing.T) {
	badSchema := []byte(`seq:
  - id: x
    type: u1
    size: 4
    size-eos: true
`)
	_, err := Parse(badSchema, []byte{0x00})
	require.Error(t, err)
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.False(t, serr.Result.Valid)
}

func TestParseSkipsValidationWhenDisabled(t *testing.T) {
	badSchema := []byte(`seq:
  - id: x
    type: u1
    size: 4
    size-eos: true
`)
	// Validation disabled: the malformed seq entry still drives the
	// interpreter, which takes the size branch and reads 4 bytes.
	_, err := Parse(badSchema, []byte{0x01, 0x02, 0x03, 0x04}, WithValidate(false))
	require.NoError(t, err)
}

func TestToJSONRendersPretty(t *testing.T) {
	root, err := Parse([]byte(testSchema), testData())
	require.NoError(t, err)

	out, err := ToJSON(root, true)
	require.NoError(t, err)
	assert.Contains(t, string(out), "\"message\"")
	assert.Contains(t, string(out), "Hello")
}

func TestExtractFieldWalksDottedPath(t *testing.T) {
	nested := []byte(`meta:
  id: outer
  endian: le
types:
  inner:
    seq:
      - id: v
        type: u2
seq:
  - id: child
    type: inner
`)
	root, err := Parse(nested, []byte{0x01, 0x00})
	require.NoError(t, err)

	v, err := ExtractField(root, "child.v")
	require.NoError(t, err)
	assert.Equal(t, ksvalue.NewInt(1), v)

	_, err = ExtractField(root, "child.missing")
	assert.Error(t, err)
}

func TestValidateSchemaWithoutParsing(t *testing.T) {
	result, err := ValidateSchema([]byte(testSchema), false)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
