package models

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Feature is a geometry with named attributes, as read from a layer file
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// Attr returns the named attribute as text
func (f Feature) Attr(name string) (string, bool) {
	v, ok := f.Properties[name]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Layer is an ordered feature collection in one coordinate reference system
type Layer struct {
	Name     string
	CRS      int // EPSG code
	Features []Feature
}
