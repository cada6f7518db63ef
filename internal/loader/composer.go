package loader

import "github.com/Zachdehooge/structure-map/internal/mapview"

// Source ids.
const (
	PointsSource = "points"
	NamesSource  = "names"
	RouteSource  = "station-route-points"
)

// Layer ids.
const (
	PointLayer      = "point-layer"
	NameLayer       = "name-layer"
	RoutePointLayer = "station-route-point-layer"
	RouteWayLayer   = "station-route-way-layer"
)

// MarkerImage is the id symbol layers use to reference the station icon.
const MarkerImage = "custom-marker"

// RouteLayers are the two layers the route selector shows and hides together.
var RouteLayers = []string{RoutePointLayer, RouteWayLayer}

// PointLayerSpec draws elements as small black circles from zoom 15.
func PointLayerSpec() mapview.Layer {
	return mapview.Layer{
		ID:      PointLayer,
		Type:    mapview.TypeCircle,
		Source:  PointsSource,
		MinZoom: 15,
		Paint: map[string]interface{}{
			"circle-radius": 4,
			"circle-color":  "black",
		},
	}
}

// NameLayerSpec draws stations with the marker icon at three quarters of its size.
func NameLayerSpec() mapview.Layer {
	return mapview.Layer{
		ID:     NameLayer,
		Type:   mapview.TypeSymbol,
		Source: NamesSource,
		Layout: map[string]interface{}{
			"icon-image": MarkerImage,
			"icon-size":  0.75,
		},
	}
}

// RoutePointLayerSpec draws the selected route's stops, hidden until a route is chosen.
func RoutePointLayerSpec() mapview.Layer {
	return mapview.Layer{
		ID:      RoutePointLayer,
		Type:    mapview.TypeCircle,
		Source:  RouteSource,
		MinZoom: 14,
		Layout: map[string]interface{}{
			"visibility": mapview.Hidden,
		},
		Paint: map[string]interface{}{
			"circle-radius": 5,
			"circle-color":  "red",
		},
	}
}

// RouteWayLayerSpec draws the selected route's path, hidden until a route is chosen.
func RouteWayLayerSpec() mapview.Layer {
	return mapview.Layer{
		ID:      RouteWayLayer,
		Type:    mapview.TypeLine,
		Source:  RouteSource,
		MinZoom: 10,
		Layout: map[string]interface{}{
			"line-join":  "round",
			"line-cap":   "round",
			"visibility": mapview.Hidden,
		},
		Paint: map[string]interface{}{
			"line-color": "red",
			"line-width": 3,
		},
	}
}
