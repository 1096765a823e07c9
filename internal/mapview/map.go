// Package mapview is the only surface the rest of the application uses to
// draw itineraries on a map. Drawing itself is delegated to a Renderer.
package mapview

import (
	"errors"
	"fmt"
)

var (
	ErrMissingToken = errors.New("map access token is required")
	ErrDestroyed    = errors.New("map destroyed")
)

const (
	DefaultStyle      = "mapbox://styles/mapbox/streets-v12"
	DefaultZoom       = 12
	DefaultRouteColor = "#3b82f6"
	DefaultPadding    = 100
	MaxFitZoom        = 15
)

// LngLat is a longitude/latitude pair, in that order.
type LngLat [2]float64

type Options struct {
	Token  string
	Style  string
	Center LngLat
	Zoom   float64
}

type MarkerOptions struct {
	Draggable bool
	Color     string
	Label     string
}

type RouteOptions struct {
	Color string
}

type Bounds struct {
	SouthWest LngLat
	NorthEast LngLat
}

type Camera struct {
	Padding int
	MaxZoom float64
}

// LineLayer describes how a route source is painted.
type LineLayer struct {
	ID      string
	Source  string
	Color   string
	Width   float64
	Opacity float64
}

// Renderer is the port to the third-party mapping SDK.
type Renderer interface {
	AddMarker(id string, at LngLat, opts MarkerOptions) error
	RemoveMarker(id string) error
	AddLineSource(id string, coords []LngLat) error
	HasSource(id string) bool
	RemoveSource(id string) error
	AddLineLayer(layer LineLayer) error
	HasLayer(id string) bool
	RemoveLayer(id string) error
	FitBounds(b Bounds, cam Camera) error
	Remove() error
}

type Marker struct {
	ID     string
	LngLat LngLat
}

type route struct {
	id       string
	sourceID string
	layerID  string
}

type ItineraryMap struct {
	r        Renderer
	opts     Options
	markers  []*Marker
	routes   []route
	nextMark int
	removed  bool
}

func New(r Renderer, opts Options) (*ItineraryMap, error) {
	if opts.Token == "" {
		return nil, ErrMissingToken
	}
	if opts.Style == "" {
		opts.Style = DefaultStyle
	}
	if opts.Zoom == 0 {
		opts.Zoom = DefaultZoom
	}
	return &ItineraryMap{r: r, opts: opts}, nil
}

func (m *ItineraryMap) Options() Options {
	return m.opts
}

func (m *ItineraryMap) AddMarker(at LngLat, opts MarkerOptions) (*Marker, error) {
	if m.removed {
		return nil, ErrDestroyed
	}
	id := fmt.Sprintf("marker-%d", m.nextMark)
	if err := m.r.AddMarker(id, at, opts); err != nil {
		return nil, err
	}
	m.nextMark++
	mk := &Marker{ID: id, LngLat: at}
	m.markers = append(m.markers, mk)
	return mk, nil
}

// AddRoute draws a line through coords and returns its route id.
func (m *ItineraryMap) AddRoute(coords []LngLat, opts RouteOptions) (string, error) {
	if m.removed {
		return "", ErrDestroyed
	}
	routeID := fmt.Sprintf("route-%d", len(m.routes))
	sourceID := routeID + "-source"
	layerID := routeID + "-layer"

	if err := m.r.AddLineSource(sourceID, coords); err != nil {
		return "", err
	}
	color := opts.Color
	if color == "" {
		color = DefaultRouteColor
	}
	if err := m.r.AddLineLayer(LineLayer{
		ID:      layerID,
		Source:  sourceID,
		Color:   color,
		Width:   3,
		Opacity: 0.7,
	}); err != nil {
		return "", err
	}

	m.routes = append(m.routes, route{id: routeID, sourceID: sourceID, layerID: layerID})
	return routeID, nil
}

// FitBounds frames every coordinate. A zero padding means DefaultPadding.
func (m *ItineraryMap) FitBounds(coords []LngLat, padding int) error {
	if m.removed || len(coords) == 0 {
		return nil
	}
	if padding == 0 {
		padding = DefaultPadding
	}
	return m.r.FitBounds(BoundsOf(coords), Camera{Padding: padding, MaxZoom: MaxFitZoom})
}

func (m *ItineraryMap) ClearMarkers() error {
	var errs []error
	for _, mk := range m.markers {
		errs = append(errs, m.r.RemoveMarker(mk.ID))
	}
	m.markers = nil
	return errors.Join(errs...)
}

func (m *ItineraryMap) ClearRoutes() error {
	var errs []error
	for _, rt := range m.routes {
		if m.r.HasLayer(rt.layerID) {
			errs = append(errs, m.r.RemoveLayer(rt.layerID))
		}
		if m.r.HasSource(rt.sourceID) {
			errs = append(errs, m.r.RemoveSource(rt.sourceID))
		}
	}
	m.routes = nil
	return errors.Join(errs...)
}

// Destroy clears everything and releases the renderer. Calling it twice is
// a no-op.
func (m *ItineraryMap) Destroy() error {
	if m.removed {
		return nil
	}
	err := errors.Join(m.ClearMarkers(), m.ClearRoutes(), m.r.Remove())
	m.removed = true
	return err
}

// BoundsOf returns the smallest box holding every coordinate, or the zero
// Bounds when coords is empty.
func BoundsOf(coords []LngLat) Bounds {
	if len(coords) == 0 {
		return Bounds{}
	}
	b := Bounds{SouthWest: coords[0], NorthEast: coords[0]}
	for _, c := range coords[1:] {
		b.SouthWest[0] = min(b.SouthWest[0], c[0])
		b.SouthWest[1] = min(b.SouthWest[1], c[1])
		b.NorthEast[0] = max(b.NorthEast[0], c[0])
		b.NorthEast[1] = max(b.NorthEast[1], c[1])
	}
	return b
}
