package export

import (
	"encoding/json"
	"time"

	"github.com/fieldline/geostack/internal/pipeline"
)

// jsonArtifact is the complete structured dump: values, provenance, item
// list, and per-variable statistics.
type jsonArtifact struct {
	StackID           string                            `json:"stack_id"`
	SpatialResolution float64                           `json:"spatial_resolution_deg"`
	TimeStep          string                            `json:"time_step"`
	GeneratedAt       time.Time                         `json:"generated_at"`
	TimeAxis          []time.Time                       `json:"time_axis"`
	Items             []jsonItem                        `json:"items"`
	Points            []jsonPoint                       `json:"points"`
	Stats             map[string]pipeline.VariableStats `json:"stats"`
}

type jsonItem struct {
	ItemID    string   `json:"item_id"`
	VersionID string   `json:"version_id"`
	Order     int      `json:"order"`
	Variables []string `json:"variables"`
}

type jsonPoint struct {
	Variable  string    `json:"variable"`
	Time      time.Time `json:"time"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Value     float64   `json:"value"`
	ItemOrder int       `json:"item_order"`
	ItemID    string    `json:"item_id"`
}

func writeJSON(result *pipeline.Result) ([]byte, error) {
	artifact := jsonArtifact{
		StackID:           result.StackID,
		SpatialResolution: float64(result.Resolution),
		TimeStep:          result.TimeStep.String(),
		GeneratedAt:       result.GeneratedAt,
		TimeAxis:          result.TimeAxis,
		Stats:             result.Stats,
	}

	for _, item := range result.Items {
		artifact.Items = append(artifact.Items, jsonItem{
			ItemID:    item.ItemID,
			VersionID: item.VersionID,
			Order:     item.Order,
			Variables: item.Variables,
		})
	}

	for _, key := range result.SortedKeys() {
		prov := result.Provenance[key]
		lat, lon := key.Cell.Center(result.Resolution)
		artifact.Points = append(artifact.Points, jsonPoint{
			Variable:  key.Variable,
			Time:      time.UnixMilli(key.Bucket).UTC(),
			Lat:       lat,
			Lon:       lon,
			Value:     result.Values[key],
			ItemOrder: prov.Order,
			ItemID:    prov.ItemID,
		})
	}

	return json.MarshalIndent(artifact, "", "  ")
}
