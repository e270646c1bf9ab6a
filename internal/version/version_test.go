package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckCompatibleSameMajor(t *testing.T) {
	require.NoError(t, CheckCompatible("1.2.3"))
}

func TestCheckCompatibleDifferentMajorRejected(t *testing.T) {
	require.Error(t, CheckCompatible("2.0.0"))
}

func TestCheckCompatibleMalformedRejected(t *testing.T) {
	require.Error(t, CheckCompatible("not-a-version"))
}
