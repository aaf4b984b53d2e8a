package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeLeft(t *testing.T) {
	assert.Equal(t, "N/A", Listing{}.TimeLeft())
	assert.Equal(t, "12m 30s", Listing{Secs: Cents(750)}.TimeLeft())
	assert.Equal(t, "0m 45s", Listing{Secs: Cents(45)}.TimeLeft())
}

func TestHasTag(t *testing.T) {
	l := Listing{Tags: []string{"dump", "diesel"}}
	assert.True(t, l.HasTag("dump"))
	assert.False(t, l.HasTag("bucket"))
}
