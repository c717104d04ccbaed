package addrmatcher

import (
	"errors"
	"testing"
)

func TestNewRegion(t *testing.T) {
	tests := []struct {
		name, short, col string
		wantErr          bool
	}{
		{"State", "State", "STATE", false},
		{"Country", "National", "", false},
		{"Meshblock", "", "", false},
		{"", "SA4", "SA4_NAME_2016", true},
		{"   ", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.short, func(t *testing.T) {
			r, err := NewRegion(tt.name, tt.short, tt.col)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("NewRegion() error = %v, want ErrInvalidArgument", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRegion() error = %v", err)
			}
			if r.Name() != tt.name || r.ShortName() != tt.short || r.ColName() != tt.col || !r.IsValid() {
				t.Errorf("NewRegion() = %+v", r)
			}
		})
	}
}

func TestRegionEquality(t *testing.T) {
	sa4 := MustRegion("Statistical Area 4", "SA4", "SA4_NAME_2016")

	tests := []struct {
		name  string
		other Region
		want  bool
	}{
		{"same", MustRegion("Statistical Area 4", "SA4", "SA4_NAME_2016"), true},
		{"other column", MustRegion("Statistical Area 4", "SA4", "SA4_NAME_2021"), true},
		{"other short name", MustRegion("Statistical Area 4", "SA-4", "SA4_NAME_2016"), false},
		{"other name", MustRegion("Statistical Area 3", "SA4", "SA4_NAME_2016"), false},
		{"zero", Region{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sa4.Equal(tt.other); got != tt.want {
				t.Errorf("Equal(%+v) = %v, want %v", tt.other, got, tt.want)
			}
		})
	}
}

func TestRegionWithColName(t *testing.T) {
	lga := MustRegion("Local Government Area", "LGA", "LGA_NAME_2016")
	lga21 := lga.WithColName("LGA_NAME_2021")

	if lga.ColName() != "LGA_NAME_2016" {
		t.Errorf("original changed: ColName() = %q", lga.ColName())
	}
	if lga21.ColName() != "LGA_NAME_2021" || !lga21.Equal(lga) {
		t.Errorf("WithColName() = %+v", lga21)
	}
	if lga.String() != "Local Government Area" {
		t.Errorf("String() = %q", lga.String())
	}
}

func TestMustRegionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRegion(\"\") did not panic")
		}
	}()
	MustRegion("", "", "")
}
