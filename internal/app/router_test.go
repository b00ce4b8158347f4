package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, ParseOrigins(""))
	assert.Equal(t, []string{"*"}, ParseOrigins("   "))
	assert.Equal(t, []string{"*"}, ParseOrigins("*"))
	assert.Equal(t, []string{"*"}, ParseOrigins(" , , "))
	assert.Equal(t, []string{"http://a.example"}, ParseOrigins("http://a.example"))
	assert.Equal(t,
		[]string{"http://a.example", "https://b.example"},
		ParseOrigins(" http://a.example , https://b.example ,"))
}
