package spatial

import "strings"

// Base32 alphabet for geohash
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// LocationGeohashPrecision gives cells of roughly 150m, about the size of a
// buffered login location.
const LocationGeohashPrecision = 7

// interval is one axis of a geohash cell being refined
type interval struct{ lo, hi float64 }

func (iv *interval) mid() float64 { return (iv.lo + iv.hi) / 2 }

// EncodeGeohash encodes latitude and longitude into a geohash string
// precision: number of characters in the geohash (1-12)
func EncodeGeohash(lat, lon float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	if precision > 12 {
		precision = 12
	}

	latIv := interval{-90, 90}
	lonIv := interval{-180, 180}

	var sb strings.Builder
	sb.Grow(precision)

	evenBit := true
	for sb.Len() < precision {
		ch := 0
		for b := 4; b >= 0; b-- {
			iv, v := &latIv, lat
			if evenBit {
				iv, v = &lonIv, lon
			}
			if m := iv.mid(); v > m {
				ch |= 1 << b
				iv.lo = m
			} else {
				iv.hi = m
			}
			evenBit = !evenBit
		}
		sb.WriteByte(base32[ch])
	}

	return sb.String()
}
