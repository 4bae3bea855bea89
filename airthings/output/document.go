// Package output keeps the readings of one or more runs and persists them as a
// single JSON document keyed by device.
package output

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/alepar/waveplus-reader/airthings"
)

// Document maps device keys to their latest reading. Keys keep insertion order,
// both in memory and in the encoded JSON.
type Document struct {
	keys     []string
	readings map[string]airthings.Reading
}

func NewDocument() *Document {
	return &Document{readings: map[string]airthings.Reading{}}
}

// Set records r under key. A key that is already present keeps its position.
func (d *Document) Set(key string, r airthings.Reading) {
	if _, ok := d.readings[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.readings[key] = r
}

func (d *Document) Get(key string) (airthings.Reading, bool) {
	r, ok := d.readings[key]
	return r, ok
}

func (d *Document) Keys() []string {
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	return keys
}

func (d *Document) Len() int {
	return len(d.keys)
}

// Merge copies every entry of other into d, replacing readings of devices present in both.
func (d *Document) Merge(other *Document) {
	for _, key := range other.keys {
		d.Set(key, other.readings[key])
	}
}

func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(d.readings[key])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode reading of %s", key)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	doc := NewDocument()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.Errorf("expected device key, got %v", tok)
		}
		var r airthings.Reading
		if err := dec.Decode(&r); err != nil {
			return errors.Wrapf(err, "failed to decode reading of %s", key)
		}
		doc.Set(key, r)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}

	*d = *doc
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return errors.Errorf("expected %s, got %v", want, tok)
	}
	return nil
}
