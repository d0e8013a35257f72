package farm

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		farm    Farm
		wantErr bool
	}{
		{name: "minimal", farm: Farm{OwnerID: "o", Name: "Field"}},
		{name: "with coordinates", farm: Farm{OwnerID: "o", Name: "Field", Latitude: ptr(45), Longitude: ptr(-120), AreaHa: ptr(0)}},
		{name: "missing owner", farm: Farm{Name: "Field"}, wantErr: true},
		{name: "blank name", farm: Farm{OwnerID: "o", Name: "   "}, wantErr: true},
		{name: "long name", farm: Farm{OwnerID: "o", Name: strings.Repeat("x", 101)}, wantErr: true},
		{name: "latitude out of range", farm: Farm{OwnerID: "o", Name: "F", Latitude: ptr(91)}, wantErr: true},
		{name: "longitude out of range", farm: Farm{OwnerID: "o", Name: "F", Longitude: ptr(-181)}, wantErr: true},
		{name: "negative area", farm: Farm{OwnerID: "o", Name: "F", AreaHa: ptr(-1)}, wantErr: true},
		{name: "NaN latitude", farm: Farm{OwnerID: "o", Name: "F", Latitude: ptr(math.NaN())}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.farm)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFarm) {
				t.Errorf("Validate() error = %v, want ErrInvalidFarm", err)
			}
		})
	}
}
