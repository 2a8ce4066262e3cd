package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfirmRequiresTerminal(t *testing.T) {
	// os.Stdin under `go test` is never a terminal, so Confirm must
	// refuse rather than silently read a non-interactive stream.
	_, err := Confirm("kill everything?")
	assert.Error(t, err)
}
