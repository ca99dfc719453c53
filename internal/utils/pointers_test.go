package utils_test

import (
	"testing"

	"github.com/jrsteele09/stockpilot/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestPointers(t *testing.T) {
	p := utils.Ptr(2.5)
	require.Equal(t, 2.5, utils.Value(p))
	require.Equal(t, 0.0, utils.Value[float64](nil))
	require.Equal(t, 7, utils.ValueOr(nil, 7))
	require.Equal(t, 3, utils.ValueOr(utils.Ptr(3), 7))
	require.False(t, utils.ValueOr(utils.Ptr(false), true))
}
