package rlog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewReturnsUsableLogger(t *testing.T) {
	log := New(false)
	require.NotPanics(t, func() { log.Info().Msg("hello") })
}

func TestNopDiscardsOutput(t *testing.T) {
	log := Nop()
	require.NotPanics(t, func() { log.Info().Msg("should be discarded") })
}
