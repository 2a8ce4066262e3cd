package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommandLineOnly(t *testing.T) {
	f := Parse([]byte("CD sub"))
	assert.Equal(t, "CD", f.Verb)
	assert.Equal(t, []string{"sub"}, f.Fields)
	assert.Equal(t, "", f.Body)
}

func TestParseWithBody(t *testing.T) {
	f := Parse([]byte("SYNC_CHUNK 0/2\n{\"a\":1}"))
	assert.Equal(t, "SYNC_CHUNK", f.Verb)
	assert.Equal(t, []string{"0/2"}, f.Fields)
	assert.Equal(t, `{"a":1}`, f.Body)
}

func TestParseEmptyPayload(t *testing.T) {
	f := Parse([]byte(""))
	assert.Equal(t, Frame{}, f)
}

func TestFrameArgOutOfRange(t *testing.T) {
	f := Parse([]byte("LIST_FILES"))
	assert.Equal(t, "", f.Arg(0))
	assert.Equal(t, "", f.Arg(-1))
}

func TestFrameRestJoined(t *testing.T) {
	f := Parse([]byte("CMD a b c"))
	assert.Equal(t, "a b c", f.RestJoined(0))
	assert.Equal(t, "b c", f.RestJoined(1))
	assert.Equal(t, "", f.RestJoined(10))
}
