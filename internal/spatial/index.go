package spatial

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// Index is a bounding-box rtree over a slice of shapes. Search results are the
// positions of the shapes in the slice the index was built from.
type Index struct {
	tree rtree.RTree
	size int
}

// NewIndex builds an index over shapes. Nil shapes are skipped.
func NewIndex(shapes []*Shape) *Index {
	idx := &Index{}
	for i, s := range shapes {
		if s == nil {
			continue
		}
		b := s.Bound()
		idx.tree.Insert(
			[2]float64{b.Min.X(), b.Min.Y()},
			[2]float64{b.Max.X(), b.Max.Y()},
			i,
		)
		idx.size++
	}
	return idx
}

// Len returns the number of indexed shapes.
func (idx *Index) Len() int {
	return idx.size
}

// Candidates returns, in ascending order, the positions of every shape whose
// bounding box intersects b.
func (idx *Index) Candidates(b orb.Bound) []int {
	var out []int
	idx.tree.Search(
		[2]float64{b.Min.X(), b.Min.Y()},
		[2]float64{b.Max.X(), b.Max.Y()},
		func(_, _ [2]float64, data interface{}) bool {
			out = append(out, data.(int))
			return true
		},
	)
	sort.Ints(out)
	return out
}
