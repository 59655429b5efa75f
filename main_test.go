package main

import (
	"testing"

	"github.com/ChaseHampton/lapida/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"discover", "resolve", "search", "normalize", "candles", "archive"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestHelpText(t *testing.T) {
	assert.NotContains(t, discoverCmd.Long, "same-origin")
	assert.Contains(t, discoverCmd.Long, "LAPIDA_API_PORTS")

	for _, field := range []string{"name", "biography", "location", "epitaph"} {
		assert.Contains(t, searchCmd.Long, field)
	}
	assert.NotContains(t, searchCmd.Long, "birth place")
}

func TestLifespan(t *testing.T) {
	m := domain.Memorial{BirthDate: "1931-02-11"}
	assert.Equal(t, "1931-?", lifespan(m))
}
