package classify

import (
	"math"

	"github.com/fer004/Sensores/internal/model"
)

// Built-in profile names.
const (
	EPAPM25    = "epa-pm25"
	NOM172PM25 = "nom172-pm25"
)

// NoDataLabel is the no-data label of the built-in profiles.
const NoDataLabel = "Sin datos"

var pmPollutants = []model.Pollutant{model.PM2_5, model.PM1_0}

// EPA returns the six-band US EPA PM2.5 AQI breakpoint table.
func EPA() Profile {
	return Profile{
		Name:        EPAPM25,
		Description: "US EPA PM2.5 AQI breakpoints (µg/m³)",
		Pollutants:  pmPollutants,
		NoData:      NoDataLabel,
		Bands: []Band{
			{UpperBound: 12.0, Label: "Bueno"},
			{UpperBound: 35.4, Label: "Moderado"},
			{UpperBound: 55.4, Label: "No saludable para grupos sensibles"},
			{UpperBound: 150.4, Label: "No saludable"},
			{UpperBound: 250.4, Label: "Muy insalubre"},
			{UpperBound: math.Inf(1), Label: "Peligroso"},
		},
	}
}

// NOM172 returns the five-band Mexican NOM-172 PM2.5 table.
func NOM172() Profile {
	return Profile{
		Name:        NOM172PM25,
		Description: "NOM-172-SEMARNAT-2019 PM2.5 bands (µg/m³, 24 h)",
		Pollutants:  pmPollutants,
		NoData:      NoDataLabel,
		Bands: []Band{
			{UpperBound: 15, Label: "Buena"},
			{UpperBound: 33, Label: "Aceptable"},
			{UpperBound: 79, Label: "Mala"},
			{UpperBound: 130, Label: "Muy mala"},
			{UpperBound: math.Inf(1), Label: "Extremadamente mala"},
		},
	}
}

// Builtin returns a registry preloaded with the built-in profiles.
func Builtin() *Registry {
	r := NewRegistry()
	for _, p := range []Profile{EPA(), NOM172()} {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}
