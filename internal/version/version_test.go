package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "docqa "+Version+" (commit: "+Commit+", built: "+BuildDate+")", String())
}
