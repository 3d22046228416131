package design

import (
	"cardstudio/core"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterExpression_Defaults(t *testing.T) {
	want := "brightness(100%) contrast(100%) saturate(100%) blur(0px) grayscale(0%)"

	assert.Equal(t, want, FilterExpression(map[string]float64{}))
	assert.Equal(t, want, FilterExpression(nil))
}

func TestFilterExpression_Values(t *testing.T) {
	testCases := []struct {
		name   string
		params map[string]float64
		want   string
	}{
		{
			name:   "partial",
			params: map[string]float64{"blur": 2, "grayscale": 50},
			want:   "brightness(100%) contrast(100%) saturate(100%) blur(2px) grayscale(50%)",
		},
		{
			name:   "fractional",
			params: map[string]float64{"brightness": 87.5, "contrast": 110},
			want:   "brightness(87.5%) contrast(110%) saturate(100%) blur(0px) grayscale(0%)",
		},
		{
			name:   "unknown keys ignored",
			params: map[string]float64{"sepia": 30, "saturation": 0},
			want:   "brightness(100%) contrast(100%) saturate(0%) blur(0px) grayscale(0%)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FilterExpression(tc.params))
		})
	}
}

func TestFilterExpression_StableOrder(t *testing.T) {
	params := map[string]float64{"grayscale": 10, "blur": 1, "saturation": 90, "contrast": 80, "brightness": 70}
	want := "brightness(70%) contrast(80%) saturate(90%) blur(1px) grayscale(10%)"

	for i := 0; i < 50; i++ {
		assert.Equal(t, want, FilterExpression(params))
	}
}

func TestItemFilterExpression(t *testing.T) {
	item := NewItem(core.KindImage, "a.png")
	item.Filter.Blur = 3

	assert.Equal(t, "brightness(100%) contrast(100%) saturate(100%) blur(3px) grayscale(0%)", ItemFilterExpression(item))
}
