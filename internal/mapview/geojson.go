package mapview

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

var _ Renderer = (*GeoJSONRenderer)(nil)

// GeoJSONRenderer keeps the drawn state as GeoJSON so it can be shipped to a
// client-side map or stored alongside an itinerary.
type GeoJSONRenderer struct {
	mu      sync.Mutex
	markers map[string]Feature
	sources map[string][]LngLat
	layers  map[string]LineLayer
	camera  *CameraState
	removed bool
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type CameraState struct {
	Bounds Bounds `json:"bounds"`
	Camera Camera `json:"camera"`
}

func NewGeoJSONRenderer() *GeoJSONRenderer {
	return &GeoJSONRenderer{
		markers: map[string]Feature{},
		sources: map[string][]LngLat{},
		layers:  map[string]LineLayer{},
	}
}

func (g *GeoJSONRenderer) AddMarker(id string, at LngLat, opts MarkerOptions) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removed {
		return ErrDestroyed
	}
	props := map[string]any{"id": id, "draggable": opts.Draggable}
	if opts.Color != "" {
		props["marker-color"] = opts.Color
	}
	if opts.Label != "" {
		props["title"] = opts.Label
	}
	g.markers[id] = Feature{
		Type:       "Feature",
		Geometry:   Geometry{Type: "Point", Coordinates: at},
		Properties: props,
	}
	return nil
}

func (g *GeoJSONRenderer) RemoveMarker(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.markers, id)
	return nil
}

func (g *GeoJSONRenderer) AddLineSource(id string, coords []LngLat) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removed {
		return ErrDestroyed
	}
	if _, ok := g.sources[id]; ok {
		return fmt.Errorf("source %s already exists", id)
	}
	g.sources[id] = append([]LngLat(nil), coords...)
	return nil
}

func (g *GeoJSONRenderer) HasSource(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.sources[id]
	return ok
}

func (g *GeoJSONRenderer) RemoveSource(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, l := range g.layers {
		if l.Source == id {
			return fmt.Errorf("source %s is used by layer %s", id, l.ID)
		}
	}
	delete(g.sources, id)
	return nil
}

func (g *GeoJSONRenderer) AddLineLayer(layer LineLayer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sources[layer.Source]; !ok {
		return fmt.Errorf("layer %s: source %s not found", layer.ID, layer.Source)
	}
	g.layers[layer.ID] = layer
	return nil
}

func (g *GeoJSONRenderer) HasLayer(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.layers[id]
	return ok
}

func (g *GeoJSONRenderer) RemoveLayer(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.layers, id)
	return nil
}

func (g *GeoJSONRenderer) FitBounds(b Bounds, cam Camera) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.camera = &CameraState{Bounds: b, Camera: cam}
	return nil
}

func (g *GeoJSONRenderer) Remove() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = true
	return nil
}

func (g *GeoJSONRenderer) Camera() (CameraState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.camera == nil {
		return CameraState{}, false
	}
	return *g.camera, true
}

// Collection returns markers then routes, each sorted by id.
func (g *GeoJSONRenderer) Collection() FeatureCollection {
	g.mu.Lock()
	defer g.mu.Unlock()

	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	for _, id := range sortedKeys(g.markers) {
		fc.Features = append(fc.Features, g.markers[id])
	}
	for _, id := range sortedKeys(g.layers) {
		l := g.layers[id]
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "LineString", Coordinates: g.sources[l.Source]},
			Properties: map[string]any{
				"id":           l.ID,
				"line-color":   l.Color,
				"line-width":   l.Width,
				"line-opacity": l.Opacity,
			},
		})
	}
	return fc
}

func (g *GeoJSONRenderer) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Collection())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
