package search

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// geoRingMeters is the ring width grouping documents into distance buckets:
// documents within the same ring tie and fall through to the next rule.
const geoRingMeters = 1.0

// geoRule orders the universe by ascending haversine distance to a reference
// point. Buckets are tolerance rings; documents without a geo point form the
// final bucket.
type geoRule struct {
	lat, lng float64

	query       *Query
	rings       []geoRing
	next        int
	restEmitted bool
}

type geoRing struct {
	distance float64
	docids   *roaring.Bitmap
}

// NewGeoRule builds a geo ranking rule around the reference point.
func NewGeoRule(lat, lng float64) RankingRule {
	return &geoRule{lat: lat, lng: lng}
}

var _ RankingRule = (*geoRule)(nil)

func (r *geoRule) ID() string { return "geo" }

func (r *geoRule) StartIteration(ctx *Context, _ SearchLogger, universe *roaring.Bitmap, query *Query) error {
	byRing := map[int64]*geoRing{}

	it := universe.Iterator()
	for it.HasNext() {
		docid := it.Next()
		lat, lng, ok, err := ctx.Txn.GeoPoint(docid)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		d := haversineMeters(r.lat, r.lng, lat, lng)
		key := int64(d / geoRingMeters)
		ring, ok := byRing[key]
		if !ok {
			ring = &geoRing{distance: float64(key) * geoRingMeters, docids: roaring.New()}
			byRing[key] = ring
		}
		ring.docids.Add(docid)
	}

	r.rings = make([]geoRing, 0, len(byRing))
	for _, ring := range byRing {
		r.rings = append(r.rings, *ring)
	}
	sort.Slice(r.rings, func(i, j int) bool { return r.rings[i].distance < r.rings[j].distance })
	r.next = 0
	r.restEmitted = false
	r.query = query
	return nil
}

func (r *geoRule) NextBucket(ctx *Context, _ SearchLogger, universe *roaring.Bitmap) (*Bucket, error) {
	if err := ctx.CheckCancelled(); err != nil {
		return nil, err
	}

	for r.next < len(r.rings) {
		ring := r.rings[r.next]
		r.next++
		candidates := roaring.And(ring.docids, universe)
		if candidates.IsEmpty() {
			continue
		}
		return &Bucket{
			Candidates: candidates,
			Score:      GeoScore{DistanceMeters: ring.distance, HasPoint: true},
			Query:      r.query,
		}, nil
	}

	if !r.restEmitted {
		r.restEmitted = true
		if !universe.IsEmpty() {
			return &Bucket{
				Candidates: universe.Clone(),
				Score:      GeoScore{},
				Query:      r.query,
			}, nil
		}
	}
	return nil, nil
}

func (r *geoRule) EndIteration(*Context, SearchLogger) {
	r.rings = nil
	r.query = nil
}

// haversineMeters computes the great-circle distance between two points.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusMeters = 6_371_000.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
