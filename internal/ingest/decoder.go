// Package ingest decodes detection frames from the sensor feeds and submits
// them to the pipeline.
//
// Every frame is one JSON object on its own line:
//
//	{"timestamp":1700000000000,"detections":[{"id":"7","class":"human","confidence":82,"bbox":{"left":-0.2,"top":0.4,"right":0.1,"bottom":-0.3}}]}
//	{"delete":"7"}
//	{"timestamp":1700000000000,"objects":[{"id":12,"class":"car","confidence":0.91,"bbox":{"left":-0.5,"top":0.2},"speed":11.3}]}
//
// "detections" frames come from the camera detector, "objects" frames from
// the radar. A radar frame lists every object currently in view.
package ingest

import (
	"errors"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/scene"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownFrame = errors.New("unknown frame type")
)

// UndefinedClass is assigned to radar objects that arrive without a label.
const UndefinedClass = "Undefined"

// Decoder converts frame lines into batches. Geometry settings may be
// changed concurrently with decoding.
type Decoder struct {
	mu       sync.Mutex
	rotation scene.Rotation
	cog      scene.COG

	// radar objects present in the previous radar frame
	radarSeen map[string]bool
}

// NewDecoder creates a decoder for a sensor mounted with rot that reports
// object positions at cog.
func NewDecoder(rot scene.Rotation, cog scene.COG) *Decoder {
	return &Decoder{rotation: rot, cog: cog, radarSeen: make(map[string]bool)}
}

// SetGeometry updates the mounting rotation and center of gravity.
func (d *Decoder) SetGeometry(rot scene.Rotation, cog scene.COG) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rotation = rot
	d.cog = cog
}

// Geometry returns the current rotation and center of gravity.
func (d *Decoder) Geometry() (scene.Rotation, scene.COG) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rotation, d.cog
}

// Decode parses one frame. Frames without a timestamp are stamped with at.
// Individual detections missing an id are skipped; missing numeric fields
// read as zero.
func (d *Decoder) Decode(line []byte, at time.Time) (pipeline.Batch, error) {
	if !gjson.ValidBytes(line) {
		return pipeline.Batch{}, ErrMalformed
	}
	frame := gjson.ParseBytes(line)
	if !frame.IsObject() {
		return pipeline.Batch{}, ErrMalformed
	}

	if ts := frame.Get("timestamp"); ts.Exists() && ts.Int() > 0 {
		at = time.UnixMilli(ts.Int())
	}
	batch := pipeline.Batch{Time: at}
	ms := at.UnixMilli()

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case frame.Get("delete").Exists():
		id := frame.Get("delete").String()
		if id == "" {
			return pipeline.Batch{}, ErrMalformed
		}
		batch.Detections = []scene.Detection{{ID: id, Timestamp: ms}}
	case frame.Get("detections").IsArray():
		for _, item := range frame.Get("detections").Array() {
			det, ok := d.camera(item, ms)
			if !ok {
				scene.Diagf("ingest: skipped detection without id: %s", item.Raw)
				continue
			}
			batch.Detections = append(batch.Detections, det)
		}
	case frame.Get("objects").IsArray():
		batch.Detections = d.radar(frame.Get("objects").Array(), ms)
	default:
		return pipeline.Batch{}, ErrUnknownFrame
	}
	return batch, nil
}

func (d *Decoder) camera(item gjson.Result, ms int64) (scene.Detection, bool) {
	id := item.Get("id").String()
	if id == "" {
		return scene.Detection{}, false
	}
	det := scene.Detection{
		ID:         id,
		Class:      scene.TranslateClass(item.Get("class").String()),
		Confidence: item.Get("confidence").Float(),
		Active:     true,
		Timestamp:  ms,
		Speed:      item.Get("speed").Float(),
	}
	if active := item.Get("active"); active.Exists() {
		det.Active = active.Bool()
	}
	if !det.Active {
		return det, true
	}

	var box scene.Box
	if bbox := item.Get("bbox"); bbox.IsObject() {
		box = scene.FromVendorBox(
			bbox.Get("left").Float(),
			bbox.Get("top").Float(),
			bbox.Get("right").Float(),
			bbox.Get("bottom").Float(),
		)
	} else {
		box = scene.Box{
			X: item.Get("x").Float(),
			Y: item.Get("y").Float(),
			W: item.Get("w").Float(),
			H: item.Get("h").Float(),
		}
	}
	det.Apply(box, d.rotation, d.cog)
	det.Attributes = attributes(item)
	return det, true
}

func attributes(item gjson.Result) scene.Attributes {
	a := scene.Attributes{
		Color:  item.Get("color").String(),
		Color2: item.Get("color2").String(),
		Hat:    item.Get("hat").String(),
		Bag:    item.Get("bag").String(),
	}
	if face := item.Get("face"); face.Exists() {
		v := face.Bool()
		a.Face = &v
	}
	return a
}

// radar converts a full radar scene. Objects seen in the previous scene but
// absent from this one are reported lost.
func (d *Decoder) radar(objects []gjson.Result, ms int64) []scene.Detection {
	out := make([]scene.Detection, 0, len(objects))
	seen := make(map[string]bool, len(objects))

	for _, obj := range objects {
		id := obj.Get("id").String()
		if id == "" {
			scene.Diagf("ingest: skipped radar object without id: %s", obj.Raw)
			continue
		}
		seen[id] = true

		det := scene.Detection{
			ID:         id,
			Class:      UndefinedClass,
			Confidence: 100,
			Active:     true,
			Timestamp:  ms,
			Speed:      scene.Round1(obj.Get("speed").Float()),
		}
		if class := obj.Get("class").String(); class != "" {
			det.Class = scene.TranslateClass(class)
		}
		// radar labels carry a probability in [0,1]
		if conf := obj.Get("confidence"); conf.Exists() {
			det.Confidence = math.Floor(conf.Float()*100 + 0.5)
		}

		bbox := obj.Get("bbox")
		left, top := bbox.Get("left").Float(), bbox.Get("top").Float()
		var box scene.Box
		if bbox.Get("right").Exists() && bbox.Get("bottom").Exists() {
			box = scene.FromVendorBox(left, top, bbox.Get("right").Float(), bbox.Get("bottom").Float())
		} else {
			// point target at the top-left corner of the reported box
			box = scene.Box{X: (left + 1) / 2 * scene.Space, Y: (1 - top) / 2 * scene.Space}
		}
		det.Apply(box, d.rotation, d.cog)
		out = append(out, det)
	}

	for _, id := range slices.Sorted(maps.Keys(d.radarSeen)) {
		if !seen[id] {
			out = append(out, scene.Detection{ID: id, Timestamp: ms})
		}
	}
	d.radarSeen = seen
	return out
}
