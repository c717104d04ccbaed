package hierarchies

import (
	"reflect"
	"testing"

	"github.com/andreiashu/addrmatcher"
)

func names(regions []addrmatcher.Region) []string {
	out := make([]string, len(regions))
	for i, r := range regions {
		out[i] = r.ShortName()
	}
	return out
}

func TestAustralia(t *testing.T) {
	h, err := Australia()
	if err != nil {
		t.Fatalf("Australia() error = %v", err)
	}
	if h.Name() != "Australia" || !h.Root().Equal(AUSCountry) {
		t.Errorf("Name() = %q, Root() = %v", h.Name(), h.Root())
	}

	wantCols := []string{
		"STATE", "LGA_NAME_2016", "SSC_NAME_2016", "MB_CODE_2016",
		"SA4_NAME_2016", "SA3_NAME_2016", "SA2_NAME_2016", "SA1_7DIGITCODE_2016",
	}
	if got := h.Columns(); !reflect.DeepEqual(got, wantCols) {
		t.Errorf("Columns() = %v, want %v", got, wantCols)
	}
	if got := h.SmallestRegion(); !got.Equal(AUSMeshblock) {
		t.Errorf("SmallestRegion() = %v, want Meshblock", got)
	}

	b, ok := h.CoordinateBoundary()
	if !ok || b != AUSBoundary {
		t.Errorf("CoordinateBoundary() = %+v, %v", b, ok)
	}
	if !b.Contains(-35.2291, 149.1067) || b.Contains(51.5074, -0.1278) {
		t.Error("boundary should hold Canberra and not London")
	}

	types := h.Types()
	if len(types) != 2 || types["Administrative"] != "Administrative" || types["ASGS"] == "" {
		t.Errorf("Types() = %v", types)
	}
	asgs, err := h.TypeRegions("ASGS")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := names(asgs), []string{"SA4", "SA3", "SA2", "SA1", "MB"}; !reflect.DeepEqual(got, want) {
		t.Errorf("TypeRegions(ASGS) = %v, want %v", got, want)
	}
}

func TestAustraliaPaths(t *testing.T) {
	h, err := Australia()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		q    addrmatcher.RegionQuery
		want []string
	}{
		{"meshblock resolves through suburb", addrmatcher.RegionQuery{Name: "MB", Operator: addrmatcher.AtOrAbove},
			[]string{"National", "State", "LGA", "Suburb", "MB"}},
		{"statistical branch", addrmatcher.RegionQuery{Name: "SA1", Operator: addrmatcher.AtOrAbove},
			[]string{"National", "State", "SA4", "SA3", "SA2", "SA1"}},
		{"below lga", addrmatcher.RegionQuery{Name: "Local Government Area", Operator: addrmatcher.AtOrBelow},
			[]string{"LGA", "Suburb", "MB"}},
		{"named list", addrmatcher.RegionQuery{Names: []string{"Suburb", "nope", "SA2"}},
			[]string{"Suburb", "SA2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.Regions(tt.q)
			if err != nil {
				t.Fatalf("Regions() error = %v", err)
			}
			if !reflect.DeepEqual(names(got), tt.want) {
				t.Errorf("Regions(%+v) = %v, want %v", tt.q, names(got), tt.want)
			}
		})
	}
}
