package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReleaseStatusWorse(t *testing.T) {
	assert.Equal(t, StatusUnreleased, StatusReleased.Worse(StatusUnreleased))
	assert.Equal(t, StatusUnreleased, StatusUnreleased.Worse(StatusHasChanged))
	assert.Equal(t, StatusHasChanged, StatusReleased.Worse(StatusHasChanged))
	assert.Equal(t, StatusHasChanged, StatusHasChanged.Worse(StatusReleased))
	assert.Equal(t, StatusReleased, StatusReleased.Worse(StatusReleased))
}
