package design

import (
	"cardstudio/core"

	"github.com/oklog/ulid/v2"
)

const (
	DefaultX = 50
	DefaultY = 50

	DefaultMediaWidth  = 200
	DefaultMediaHeight = 150
	DefaultTextWidth   = 200
	DefaultTextHeight  = 50

	DefaultTextContent = "Nouveau texte"
	DefaultFontFamily  = "Arial"
	DefaultFontSize    = 24
	DefaultTextColor   = "#000000"
)

type itemOptions struct {
	x, y          float64
	width, height float64
	sized         bool
	content       *string
}

// Option adjusts an item built by NewItem.
type Option func(*itemOptions)

func WithPosition(x, y float64) Option {
	return func(o *itemOptions) {
		o.x, o.y = x, y
	}
}

func WithSize(width, height float64) Option {
	return func(o *itemOptions) {
		o.width, o.height = width, height
		o.sized = true
	}
}

// WithContent sets the text of a text item. Ignored for media items.
func WithContent(content string) Option {
	return func(o *itemOptions) {
		o.content = &content
	}
}

// NewID returns a fresh item identity: a ULID, millisecond time plus a
// monotonic random component. Unique within a process, not a global id.
func NewID() string {
	return ulid.Make().String()
}

// NewItem builds a fully populated item of the given kind. src is the media
// source reference and is kept as is; it is unused for text items. Unknown
// kinds are built as images.
func NewItem(kind core.ItemKind, src string, opts ...Option) core.Item {
	o := itemOptions{x: DefaultX, y: DefaultY}
	for _, opt := range opts {
		opt(&o)
	}

	item := core.Item{
		ID:      NewID(),
		Kind:    kind,
		X:       o.x,
		Y:       o.y,
		Opacity: 1,
		Shadow:  DefaultShadow(),
		Filter:  DefaultFilter(),
	}

	switch kind {
	case core.KindText:
		content := DefaultTextContent
		if o.content != nil {
			content = *o.content
		}
		item.Width, item.Height = DefaultTextWidth, DefaultTextHeight
		item.TextProps = &core.TextProps{
			Content:    content,
			FontFamily: DefaultFontFamily,
			FontSize:   DefaultFontSize,
			Color:      DefaultTextColor,
			Align:      "left",
		}
	case core.KindVideo:
		item.Width, item.Height = DefaultMediaWidth, DefaultMediaHeight
		item.MediaProps = &core.MediaProps{Src: src, MediaType: string(kind)}
		item.PlaybackProps = &core.PlaybackProps{Playing: false}
		item.VideoProps = &core.VideoProps{AutoPlay: false, Loop: false, Muted: true}
	case core.KindGif:
		item.Width, item.Height = DefaultMediaWidth, DefaultMediaHeight
		item.MediaProps = &core.MediaProps{Src: src, MediaType: string(kind)}
		item.PlaybackProps = &core.PlaybackProps{Playing: true}
		item.GifProps = &core.GifProps{Animated: true}
	default:
		item.Kind = core.KindImage
		item.Width, item.Height = DefaultMediaWidth, DefaultMediaHeight
		item.MediaProps = &core.MediaProps{Src: src, MediaType: string(core.KindImage)}
	}

	if o.sized {
		item.Width, item.Height = o.width, o.height
	}
	return item
}

// NewMediaItem is NewItem for image, video and gif items.
func NewMediaItem(kind core.ItemKind, src string, opts ...Option) core.Item {
	if !kind.IsMedia() {
		kind = core.KindImage
	}
	return NewItem(kind, src, opts...)
}

func NewTextItem(content string, opts ...Option) core.Item {
	return NewItem(core.KindText, "", append([]Option{WithContent(content)}, opts...)...)
}

func DefaultShadow() core.Shadow {
	return core.Shadow{
		Enabled: false,
		Color:   "rgba(0,0,0,0.5)",
		Blur:    10,
		OffsetX: 5,
		OffsetY: 5,
	}
}

func DefaultFilter() core.Filter {
	return core.Filter{
		Brightness: defaultBrightness,
		Contrast:   defaultContrast,
		Saturation: defaultSaturation,
		Blur:       defaultBlur,
		Grayscale:  defaultGrayscale,
	}
}
