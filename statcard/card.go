package statcard

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/dustin/go-humanize"
)

// Labels shown while a card is loading.
const (
	LoadingTitle       = "Loading..."
	LoadingValue       = "..."
	LoadingDescription = "Loading data..."
	SpinnerIcon        = "◌"
)

// Props are the inputs of a stat card.
type Props struct {
	// Title is the card heading.
	Title string

	// Value is the primary value. Numbers are formatted with thousands
	// separators; anything else is printed with fmt.
	Value any

	// Value2 is an optional secondary value, shown only when non-nil.
	Value2 any

	// Description is the caption under the value.
	Description string

	// Icon is a glyph or short label shown next to the title.
	Icon string

	// IsLoading selects the loading card unless Error is set.
	IsLoading bool

	// Error is an error value, a message string, or a JSON-shaped
	// map[string]any. nil or "" means no error.
	Error any
}

// Kind names the render branch of a card.
type Kind string

const (
	KindLoading Kind = "loading"
	KindError   Kind = "error"
	KindReady   Kind = "ready"
)

// State is the resolved render branch of a card: one of [Loading], [Failed]
// or [Ready].
type State interface {
	Kind() Kind
	isState()
}

// Loading is the state of a card whose data has not arrived yet.
type Loading struct{}

// Failed is the state of a card whose data could not be loaded.
type Failed struct {
	Message string
}

// Ready is the state of a card with data to show.
type Ready struct {
	Title       string
	Value       any
	Value2      any
	Description string
	Icon        string
}

func (Loading) Kind() Kind { return KindLoading }
func (Failed) Kind() Kind  { return KindError }
func (Ready) Kind() Kind   { return KindReady }

func (Loading) isState() {}
func (Failed) isState()  {}
func (Ready) isState()   {}

// Resolve picks the render branch for p. An error wins over loading, and
// loading wins over data.
func Resolve(p Props) State {
	if HasError(p.Error) {
		return Failed{Message: ErrorMessage(p.Error)}
	}
	if p.IsLoading {
		return Loading{}
	}
	return Ready{
		Title:       p.Title,
		Value:       p.Value,
		Value2:      p.Value2,
		Description: p.Description,
		Icon:        p.Icon,
	}
}

// HasError reports whether v counts as an error for [Resolve]: anything but
// nil, a typed nil pointer, or the empty string.
func HasError(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return false
		}
	}
	return true
}

// View is the flattened, display-ready form of a card.
type View struct {
	// ID identifies the card on a dashboard. Empty for standalone cards.
	ID string `json:"id,omitempty"`

	Kind        Kind   `json:"kind"`
	Title       string `json:"title,omitempty"`
	Value       string `json:"value,omitempty"`
	Value2      string `json:"value2,omitempty"`
	ShowValue2  bool   `json:"show_value2"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`

	// Message is set only for error cards.
	Message string `json:"message,omitempty"`
}

// Present turns a state into display strings.
func Present(s State) View {
	switch st := s.(type) {
	case Failed:
		return View{Kind: KindError, Message: st.Message}
	case Loading:
		return View{
			Kind:        KindLoading,
			Title:       LoadingTitle,
			Value:       LoadingValue,
			Description: LoadingDescription,
			Icon:        SpinnerIcon,
		}
	case Ready:
		v := View{
			Kind:        KindReady,
			Title:       st.Title,
			Value:       FormatValue(st.Value),
			Description: st.Description,
			Icon:        st.Icon,
		}
		if st.Value2 != nil {
			v.Value2 = FormatValue(st.Value2)
			v.ShowValue2 = true
		}
		return v
	default:
		return View{Kind: KindError, Message: DefaultErrorMessage}
	}
}

// FormatValue renders a card value. Integers get thousands separators and
// fractional numbers keep at most two decimals.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return humanize.Comma(int64(x))
	case int32:
		return humanize.Comma(int64(x))
	case int64:
		return humanize.Comma(x)
	case float32:
		return formatFloat(float64(x))
	case float64:
		return formatFloat(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return humanize.Comma(n)
		}
		if f, err := x.Float64(); err == nil {
			return formatFloat(f)
		}
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return humanize.Comma(int64(f))
	}
	return humanize.CommafWithDigits(f, 2)
}
