package track

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// Document is the portable .track file: arena size, the PNG-encoded road
// mask, the spawn pose and the ordered gate list.
type Document struct {
	Version     int    `json:"version" bson:"version"`
	Name        string `json:"name,omitempty" bson:"name,omitempty"`
	Width       int    `json:"width" bson:"width"`
	Height      int    `json:"height" bson:"height"`
	RoadMaskB64 string `json:"road_mask_base64" bson:"road_mask_base64"`
	Start       Start  `json:"start" bson:"start"`
	Checkpoints []Gate `json:"checkpoints" bson:"checkpoints"`
}

// Start is the spawn pose shared by every agent.
type Start struct {
	X     float64 `json:"x" bson:"x"`
	Y     float64 `json:"y" bson:"y"`
	Angle float64 `json:"angle" bson:"angle"`
}

// ToDocument exports the track as a portable document.
func (t *Track) ToDocument(name string) (Document, error) {
	pngBytes, err := EncodeMask(t.mask, t.Width, t.Height)
	if err != nil {
		return Document{}, fmt.Errorf("failed to encode road mask: %w", err)
	}
	gates := make([]Gate, len(t.Gates))
	copy(gates, t.Gates)
	return Document{
		Version:     1,
		Name:        name,
		Width:       t.Width,
		Height:      t.Height,
		RoadMaskB64: base64.StdEncoding.EncodeToString(pngBytes),
		Start:       Start{X: t.StartX, Y: t.StartY, Angle: t.StartAngle},
		Checkpoints: gates,
	}, nil
}

// FromDocument builds a Track from a portable document. A malformed mask
// payload degrades to an all-grass arena rather than failing; only an
// unusable arena size is an error.
func FromDocument(doc Document) (*Track, error) {
	if doc.Width < 1 || doc.Height < 1 {
		return nil, fmt.Errorf("invalid track size %dx%d", doc.Width, doc.Height)
	}
	t := New(doc.Width, doc.Height)
	if doc.RoadMaskB64 != "" {
		pngBytes, err := base64.StdEncoding.DecodeString(doc.RoadMaskB64)
		if err == nil {
			t.mask = DecodeMask(pngBytes, doc.Width, doc.Height)
		}
	}
	t.StartX = doc.Start.X
	t.StartY = doc.Start.Y
	t.StartAngle = doc.Start.Angle
	t.Gates = make([]Gate, len(doc.Checkpoints))
	for i, g := range doc.Checkpoints {
		g.Index = i
		t.Gates[i] = g
	}
	return t, nil
}

// Save writes the track document as JSON.
func (t *Track) Save(path, name string) error {
	doc, err := t.ToDocument(name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal track: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write track: %w", err)
	}
	return nil
}

// Load reads a track document from a JSON file.
func Load(path string) (*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read track: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse track: %w", err)
	}
	return FromDocument(doc)
}
