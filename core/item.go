package core

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// ItemKind discriminates the variants of a canvas item.
type ItemKind string

const (
	KindText  ItemKind = "text"
	KindImage ItemKind = "image"
	KindVideo ItemKind = "video"
	KindGif   ItemKind = "gif"
)

// IsMedia reports whether items of this kind carry a source reference.
func (k ItemKind) IsMedia() bool {
	return k == KindImage || k == KindVideo || k == KindGif
}

type (
	Shadow struct {
		Enabled bool    `json:"enabled"`
		Color   string  `json:"color"`
		Blur    float64 `json:"blur"`
		OffsetX float64 `json:"offsetX"`
		OffsetY float64 `json:"offsetY"`
	}

	// Filter holds the visual filter values of an item, in percent except Blur (pixels).
	Filter struct {
		Brightness float64 `json:"brightness"`
		Contrast   float64 `json:"contrast"`
		Saturation float64 `json:"saturation"`
		Blur       float64 `json:"blur"`
		Grayscale  float64 `json:"grayscale"`
	}

	TextProps struct {
		Content    string  `json:"content"`
		FontFamily string  `json:"fontFamily"`
		FontSize   float64 `json:"fontSize"`
		Color      string  `json:"color"`
		Align      string  `json:"align"`
		Bold       bool    `json:"bold"`
		Italic     bool    `json:"italic"`
	}

	MediaProps struct {
		Src       string `json:"src"`
		MediaType string `json:"mediaType,omitempty"`
	}

	// PlaybackProps is shared by the animated variants (video, gif).
	PlaybackProps struct {
		Playing bool `json:"playing"`
	}

	VideoProps struct {
		AutoPlay bool `json:"autoPlay"`
		Loop     bool `json:"loop"`
		Muted    bool `json:"muted"`
	}

	GifProps struct {
		Animated bool `json:"animated"`
	}

	// Item is one element placed on a design canvas. The variant specific
	// attributes are embedded pointers so the wire form stays a flat object;
	// a nil pointer means the variant does not carry those attributes.
	// Attributes the model does not know about are kept in Extra and written
	// back inline.
	Item struct {
		ID           string   `json:"id"`
		Kind         ItemKind `json:"type"`
		X            float64  `json:"x"`
		Y            float64  `json:"y"`
		Width        float64  `json:"width"`
		Height       float64  `json:"height"`
		BorderRadius float64  `json:"borderRadius"`
		Opacity      float64  `json:"opacity"`
		Rotation     float64  `json:"rotation"`
		FlipX        bool     `json:"flipX"`
		FlipY        bool     `json:"flipY"`
		Shadow       Shadow   `json:"shadow"`
		Filter       Filter   `json:"filter"`

		*TextProps
		*MediaProps
		*PlaybackProps
		*VideoProps
		*GifProps

		Extra map[string]any `json:"-"`
	}
)

// Params returns the filter as the sparse parameter map used to build filter expressions.
func (f Filter) Params() map[string]float64 {
	return map[string]float64{
		"brightness": f.Brightness,
		"contrast":   f.Contrast,
		"saturation": f.Saturation,
		"blur":       f.Blur,
		"grayscale":  f.Grayscale,
	}
}

// itemJSON has Item's layout without its methods.
type itemJSON Item

func (it Item) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(itemJSON(it))
	if err != nil || len(it.Extra) == 0 {
		return base, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, value := range it.Extra {
		if _, taken := merged[key]; taken {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		merged[key] = raw
	}
	return json.Marshal(merged)
}

func (it *Item) UnmarshalJSON(data []byte) error {
	var decoded itemJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	var rest map[string]any
	if err := json.Unmarshal(data, &rest); err != nil {
		return err
	}
	known := itemKeys()
	for key := range rest {
		if _, ok := known[key]; ok {
			delete(rest, key)
		}
	}

	*it = Item(decoded)
	if len(rest) > 0 {
		it.Extra = rest
	}
	return nil
}

// IsItemKey reports whether key is an attribute the item model knows about.
func IsItemKey(key string) bool {
	_, ok := itemKeys()[key]
	return ok
}

var itemKeys = sync.OnceValue(func() map[string]struct{} {
	keys := make(map[string]struct{})
	collectJSONKeys(reflect.TypeOf(itemJSON{}), keys)
	return keys
})

func collectJSONKeys(t reflect.Type, keys map[string]struct{}) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			collectJSONKeys(ft, keys)
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}
		keys[name] = struct{}{}
	}
}
