package design

import (
	"cardstudio/core"
	"strconv"
	"strings"
)

const (
	defaultBrightness = 100
	defaultContrast   = 100
	defaultSaturation = 100
	defaultBlur       = 0
	defaultGrayscale  = 0
)

// filterSteps is the order the renderer composes the filters in.
var filterSteps = []struct {
	param    string
	function string
	unit     string
	fallback float64
}{
	{"brightness", "brightness", "%", defaultBrightness},
	{"contrast", "contrast", "%", defaultContrast},
	{"saturation", "saturate", "%", defaultSaturation},
	{"blur", "blur", "px", defaultBlur},
	{"grayscale", "grayscale", "%", defaultGrayscale},
}

// FilterExpression renders a sparse set of filter values as a filter
// expression, e.g. "brightness(100%) contrast(100%) saturate(100%) blur(0px) grayscale(0%)".
// Missing values take their neutral default and unknown keys are ignored.
func FilterExpression(params map[string]float64) string {
	var b strings.Builder
	for i, step := range filterSteps {
		value, ok := params[step.param]
		if !ok {
			value = step.fallback
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(step.function)
		b.WriteByte('(')
		b.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
		b.WriteString(step.unit)
		b.WriteByte(')')
	}
	return b.String()
}

func ItemFilterExpression(item core.Item) string {
	return FilterExpression(item.Filter.Params())
}
