package mapview

// Config describes how a map renders its layers.
type Config struct {
	BaseMap     BaseMap `json:"baseMap" yaml:"base_map"`
	Height      string  `json:"height" yaml:"height"`
	Theme       string  `json:"theme" yaml:"theme"`
	Interactive bool    `json:"interactive" yaml:"interactive"`
	ZoomToData  bool    `json:"zoomToData" yaml:"zoom_to_data"`
	AllowZoom   bool    `json:"allowZoom" yaml:"allow_zoom"`
	AllowPan    bool    `json:"allowPan" yaml:"allow_pan"`

	Controls   Controls   `json:"controls" yaml:"controls"`
	Style      Style      `json:"style" yaml:"style"`
	Popup      Popup      `json:"popup" yaml:"popup"`
	Legend     Legend     `json:"legend" yaml:"legend"`
	Choropleth Choropleth `json:"choropleth" yaml:"choropleth"`

	// LargeBytes marks documents whose features are drawn with the base style only.
	LargeBytes int64 `json:"-" yaml:"-"`
}

// BaseMap is the tile layer under the data.
type BaseMap struct {
	URL         string `json:"url" yaml:"url"`
	Attribution string `json:"attribution" yaml:"attribution"`
}

// Controls toggles the map chrome.
type Controls struct {
	Fullscreen    bool `json:"fullscreen" yaml:"fullscreen"`
	CenterView    bool `json:"centerView" yaml:"center_view"`
	LayerControls bool `json:"layerControls" yaml:"layer_controls"`
}

// Style is the vector style of a feature.
type Style struct {
	Weight      float64 `json:"weight" yaml:"weight"`
	Opacity     float64 `json:"opacity" yaml:"opacity"`
	Color       string  `json:"color" yaml:"color"`
	FillColor   string  `json:"fillColor" yaml:"fill_color"`
	FillOpacity float64 `json:"fillOpacity" yaml:"fill_opacity"`
}

// Popup renders feature properties through an html/template.
type Popup struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Template string `json:"-" yaml:"template"`
}

// Legend places the choropleth legend.
type Legend struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Title    string `json:"title" yaml:"title"`
	Position string `json:"position" yaml:"position"`
}

// Choropleth colors polygons by a numeric property.
type Choropleth struct {
	Property string   `json:"property" yaml:"property"`
	Colors   []string `json:"colors" yaml:"colors"`
}

// DefaultPopupTemplate lists every property of the feature.
const DefaultPopupTemplate = `<div class="p-3">{{range $k, $v := .}}<p><strong>{{$k}}:</strong> {{$v}}</p>{{end}}</div>`

// DefaultConfig returns an interactive light map with every control enabled.
func DefaultConfig() Config {
	return Config{
		BaseMap: BaseMap{
			URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: "&copy; OpenStreetMap contributors",
		},
		Height:      "400px",
		Theme:       "light",
		Interactive: true,
		ZoomToData:  true,
		AllowZoom:   true,
		AllowPan:    true,
		Controls: Controls{
			Fullscreen:    true,
			CenterView:    true,
			LayerControls: true,
		},
		Style: Style{
			Weight:      2,
			Opacity:     0.8,
			Color:       "#3b82f6",
			FillColor:   "#3b82f6",
			FillOpacity: 0.2,
		},
		Popup:  Popup{Enabled: true},
		Legend: Legend{Position: "bottomright"},
	}
}
