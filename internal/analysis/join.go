package analysis

import (
	"context"

	"github.com/jengzang/loi-backend-go/internal/models"
	"github.com/jengzang/loi-backend-go/internal/spatial"
	"go.uber.org/zap"
)

// PoliceJoinStage attaches to every ranked Location the police jurisdiction
// with the largest overlap. Equal overlaps keep the first polygon in layer
// order; Locations without an overlapping polygon keep a nil jurisdiction.
type PoliceJoinStage struct{}

func (PoliceJoinStage) Name() string { return StagePoliceJoin }

func (PoliceJoinStage) Run(ctx context.Context, st *State) (*StageReport, error) {
	idx := spatial.NewIndex(featureShapes(st.Police))
	field := st.Params.Fields.PoliceStation
	if idx.Len() == 0 && len(st.Ranked) > 0 {
		st.warn("police layer has no geometries; every location keeps a null jurisdiction",
			zap.Int("locations", len(st.Ranked)))
	}

	final := make([]models.Location, len(st.Ranked))
	matched := 0
	for i, loc := range st.Ranked {
		best, err := largestOverlap(st.Engine, idx, loc.Shape, st.Police)
		if err != nil {
			return nil, err
		}
		loc.PoliceJurisdiction = nil
		if best >= 0 {
			name, _ := st.Police[best].Attr(field)
			loc.PoliceJurisdiction = &name
			matched++
		}
		final[i] = loc
	}
	st.Final = final

	return &StageReport{Input: len(st.Ranked), Output: matched}, nil
}

func largestOverlap(e *spatial.Engine, idx *spatial.Index, s *spatial.Shape, layer []ProjectedFeature) (int, error) {
	best, bestArea := -1, -1.0
	for _, c := range idx.Candidates(s.Bound()) {
		ok, err := e.Intersects(s, layer[c].Shape)
		if err != nil {
			return -1, err
		}
		if !ok {
			continue
		}
		area, err := e.OverlapArea(s, layer[c].Shape)
		if err != nil {
			return -1, err
		}
		if area > bestArea {
			best, bestArea = c, area
		}
	}
	return best, nil
}

// AddressJoinStage emits one row per (Location, intersecting address).
// Locations without an address keep a single row with an empty address.
// Rows are deduplicated on (rank, address).
type AddressJoinStage struct{}

func (AddressJoinStage) Name() string { return StageAddressJoin }

func (AddressJoinStage) Run(ctx context.Context, st *State) (*StageReport, error) {
	idx := spatial.NewIndex(featureShapes(st.Addresses))
	field := st.Params.Fields.Address
	shapeAt := func(i int) *spatial.Shape { return st.Addresses[i].Shape }

	var rows []models.AddressJoinRow
	for _, loc := range st.Final {
		hits, err := allIntersecting(st.Engine, idx, loc.Shape, shapeAt)
		if err != nil {
			return nil, err
		}
		if len(hits) == 0 {
			rows = append(rows, addressRow(loc, ""))
			continue
		}
		for _, h := range hits {
			addr, _ := st.Addresses[h].Attr(field)
			rows = append(rows, addressRow(loc, addr))
		}
	}

	st.AddressRows = Deduplicate(rows, addressKeyOf)

	return &StageReport{
		Input:  len(rows),
		Output: len(st.AddressRows),
		Artifacts: []Artifact{
			{Name: ArtifactAddresses, Features: addressFeatures(st.AddressRows, locationsByID(st.Final), st.Params.Fields)},
		},
	}, nil
}

func addressRow(loc models.Location, address string) models.AddressJoinRow {
	return models.AddressJoinRow{
		Rank:               loc.Rank,
		IncidentCount:      loc.IncidentCount,
		IdentityCount:      loc.IdentityCount,
		IncidentIndex:      loc.IncidentIndex,
		IdentityIndex:      loc.IdentityIndex,
		CompositeScore:     loc.CompositeScore,
		PoliceJurisdiction: loc.Jurisdiction(),
		Address:            address,
		LocationID:         loc.ID,
	}
}

// AccountJoinStage emits one row per (Location, filtered point inside it),
// deduplicated on (rank, account id, account name).
type AccountJoinStage struct{}

func (AccountJoinStage) Name() string { return StageAccountJoin }

func (AccountJoinStage) Run(ctx context.Context, st *State) (*StageReport, error) {
	shapes := make([]*spatial.Shape, len(st.Filtered))
	for i, p := range st.Filtered {
		shapes[i] = p.Shape
	}
	idx := spatial.NewIndex(shapes)
	shapeAt := func(i int) *spatial.Shape { return shapes[i] }

	var rows []models.AccountJoinRow
	for _, loc := range st.Final {
		hits, err := allIntersecting(st.Engine, idx, loc.Shape, shapeAt)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			p := st.Filtered[h]
			rows = append(rows, models.AccountJoinRow{
				Rank:               loc.Rank,
				IncidentCount:      loc.IncidentCount,
				IdentityCount:      loc.IdentityCount,
				IncidentIndex:      loc.IncidentIndex,
				IdentityIndex:      loc.IdentityIndex,
				CompositeScore:     loc.CompositeScore,
				PoliceJurisdiction: loc.Jurisdiction(),
				AccountID:          p.AccountID,
				AccountName:        p.AccountName,
				SourceAddress:      p.SourceAddress,
				LocationID:         loc.ID,
			})
		}
	}

	st.AccountRows = Deduplicate(rows, accountKeyOf)

	return &StageReport{
		Input:  len(rows),
		Output: len(st.AccountRows),
		Artifacts: []Artifact{
			{Name: ArtifactAccounts, Features: accountFeatures(st.AccountRows, locationsByID(st.Final), st.Params.Fields)},
		},
	}, nil
}
