package db

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodePoint encodes p for a PostGIS geometry column. A nil point encodes
// as SQL NULL.
func EncodePoint(p *geom.Point) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "db: encode EWKB")
	}
	return data, nil
}
