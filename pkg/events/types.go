package events

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sealor/ai-extractor/pkg/logging"
	"github.com/sealor/ai-extractor/pkg/tooling"
	"github.com/tidwall/gjson"
)

//go:embed specs/*.yaml
var specFS embed.FS

var ErrPaymentModeRequired = errors.New("payment mode is required if the event is paid")

type PaymentMode string

const (
	PaymentTicket         PaymentMode = "ticket"
	PaymentPaidMembership PaymentMode = "paid_membership"
	PaymentAppointment    PaymentMode = "appointment"
	PaymentInPremises     PaymentMode = "in_premises"
)

var paymentModes = []PaymentMode{PaymentTicket, PaymentPaidMembership, PaymentAppointment, PaymentInPremises}

// CityEvent is an event or ongoing offer announced in a city newsletter.
type CityEvent struct {
	Name             string       `json:"name" yaml:"name"`
	Description      string       `json:"description" yaml:"description"`
	Categories       []string     `json:"categories" yaml:"categories"`
	Addresses        []string     `json:"addresses,omitempty" yaml:"addresses,omitempty"`
	IsOngoing        bool         `json:"is_ongoing" yaml:"is_ongoing"`
	StartDate        []string     `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate          []string     `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	StartTime        []string     `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime          []string     `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	IsPaid           bool         `json:"is_paid" yaml:"is_paid"`
	HasPromotion     bool         `json:"has_promotion" yaml:"has_promotion"`
	PromotionDetails string       `json:"promotion_details,omitempty" yaml:"promotion_details,omitempty"`
	PaymentMode      *PaymentMode `json:"payment_mode,omitempty" yaml:"payment_mode,omitempty"`
	PaymentDetails   string       `json:"payment_details,omitempty" yaml:"payment_details,omitempty"`
	Links            []string     `json:"links,omitempty" yaml:"links,omitempty"`
}

// NewCityEvent builds a CityEvent from create_event arguments. Nested lists
// sent by the model are flattened.
func NewCityEvent(arguments string) (any, error) {
	if !gjson.Valid(arguments) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	r := gjson.Parse(arguments)

	ev := &CityEvent{
		Name:             r.Get("name").String(),
		Description:      r.Get("description").String(),
		Categories:       flatten(r.Get("categories")),
		Addresses:        flatten(r.Get("addresses")),
		IsOngoing:        r.Get("is_ongoing").Bool(),
		StartDate:        flatten(r.Get("start_date")),
		EndDate:          flatten(r.Get("end_date")),
		StartTime:        flatten(r.Get("start_time")),
		EndTime:          flatten(r.Get("end_time")),
		IsPaid:           r.Get("is_paid").Bool(),
		HasPromotion:     r.Get("has_promotion").Bool(),
		PromotionDetails: r.Get("promotion_details").String(),
		PaymentDetails:   r.Get("payment_details").String(),
		Links:            flatten(r.Get("links")),
	}
	if pm := r.Get("payment_mode"); pm.Exists() && pm.Type != gjson.Null {
		mode := PaymentMode(pm.String())
		if !slices.Contains(paymentModes, mode) {
			return nil, fmt.Errorf("unknown payment mode %q", pm.String())
		}
		ev.PaymentMode = &mode
	}

	if ev.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if ev.IsPaid && ev.PaymentMode == nil {
		return nil, ErrPaymentModeRequired
	}
	for _, d := range slices.Concat(ev.StartDate, ev.EndDate) {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return nil, fmt.Errorf("invalid date %q", d)
		}
	}
	for _, t := range slices.Concat(ev.StartTime, ev.EndTime) {
		if !validTime(t) {
			return nil, fmt.Errorf("invalid time %q", t)
		}
	}
	if !ev.IsOngoing && len(ev.StartDate) == 0 {
		logging.Logger().Warn("event start date not mentioned but the event is not ongoing", "event", ev.Name)
	}
	return ev, nil
}

func (e *CityEvent) String() string {
	return fmt.Sprintf("%s (%s)", e.Name, strings.Join(e.Categories, ", "))
}

func validTime(s string) bool {
	for _, layout := range []string{"15:04", time.TimeOnly} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// flatten collects the scalar leaves of arbitrarily nested arrays.
func flatten(r gjson.Result) []string {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	if !r.IsArray() {
		return []string{r.String()}
	}
	var out []string
	for _, item := range r.Array() {
		out = append(out, flatten(item)...)
	}
	return out
}

type Unit string

const (
	Celsius    Unit = "celsius"
	Fahrenheit Unit = "fahrenheit"
)

type WeatherEvent struct {
	Location    string `json:"location" yaml:"location"`
	Temperature int    `json:"temperature" yaml:"temperature"`
	Unit        Unit   `json:"unit" yaml:"unit"`
}

// NewWeatherEvent builds a WeatherEvent from get_current_weather arguments.
// Unknown fields are rejected.
func NewWeatherEvent(arguments string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(arguments))
	dec.DisallowUnknownFields()

	var ev WeatherEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	if ev.Location == "" {
		return nil, fmt.Errorf("location is required")
	}
	if ev.Unit != Celsius && ev.Unit != Fahrenheit {
		return nil, fmt.Errorf("unknown unit %q", ev.Unit)
	}
	return &ev, nil
}

func (e *WeatherEvent) String() string {
	return fmt.Sprintf("%s: %d %s", e.Location, e.Temperature, e.Unit)
}

// Type bundles the function spec of an event type with its creators.
type Type struct {
	Name     string
	Spec     *tooling.Spec
	Creators map[string]Creator
}

var types = map[string]struct {
	specFile string
	creators map[string]Creator
}{
	"CityEvent":    {"specs/city_event.yaml", map[string]Creator{"create_event": NewCityEvent}},
	"WeatherEvent": {"specs/weather_event.yaml", map[string]Creator{"get_current_weather": NewWeatherEvent}},
}

// TypeNames lists the built-in event types.
func TypeNames() []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func LoadType(name string) (*Type, error) {
	t, ok := types[name]
	if !ok {
		return nil, fmt.Errorf("unknown event type %s (known: %s)", name, strings.Join(TypeNames(), ", "))
	}
	data, err := specFS.ReadFile(t.specFile)
	if err != nil {
		return nil, err
	}
	spec, err := tooling.ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.specFile, err)
	}
	return &Type{Name: name, Spec: spec, Creators: t.creators}, nil
}

// NewManager builds the event manager for the type.
func (t *Type) NewManager(opts ...Option) (*Manager, error) {
	return NewManager(t.Spec, t.Creators, opts...)
}
