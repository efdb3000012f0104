package chatctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/suPer8Hu/chatcore/internal/models"
)

func TestEstimateText(t *testing.T) {
	assert.Equal(t, 0, EstimateText(""))
	assert.Equal(t, 0, EstimateText("   "))
	assert.Equal(t, 1, EstimateText("hi"))
	assert.Equal(t, 3, EstimateText("hello world"))
	assert.Equal(t, 2, EstimateText("你好"))
	assert.Greater(t, EstimateText("a much longer sentence with several words in it"), EstimateText("short one"))
}

func TestEstimateText_NormalizesComposedForms(t *testing.T) {
	assert.Equal(t, EstimateText("caf\u00e9"), EstimateText("cafe\u0301"))
}

func TestEstimateMessages(t *testing.T) {
	msgs := []models.Message{
		{Content: "hi"},
		{Content: "", Files: []models.FileRecord{{Type: models.FileImage}}},
	}
	assert.Equal(t, perMessageOverhead*2+1+perImageTokens, EstimateMessages(msgs))
	assert.Equal(t, 0, EstimateMessages(nil))
}
