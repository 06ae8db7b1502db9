package matching

import (
	"github.com/openride/dispatch/pkg/geo"
	"github.com/openride/dispatch/pkg/models"
)

// tariff holds the pricing rates for one vehicle class.
type tariff struct {
	Base  float64
	PerKm float64
}

var tariffs = map[models.VehicleType]tariff{
	models.VehicleBike:  {Base: 2.0, PerKm: 0.5},
	models.VehicleSedan: {Base: 3.5, PerKm: 1.0},
	models.VehicleSUV:   {Base: 5.0, PerKm: 1.5},
}

// EstimateFare prices a trip of the given unrounded distance and rounds the
// result to two decimals. Unrecognized vehicle types price at sedan rates.
func EstimateFare(vehicleType models.VehicleType, distanceKm float64) float64 {
	t, ok := tariffs[vehicleType]
	if !ok {
		t = tariffs[models.VehicleSedan]
	}
	return geo.Round2(t.Base + t.PerKm*distanceKm)
}
