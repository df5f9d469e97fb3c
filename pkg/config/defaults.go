package config

import (
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/localtime"
)

func clock(h, m int) localtime.Clock { return localtime.Clock(h*60 + m) }

func dur(d time.Duration) Duration { return Duration(d) }

// Default returns the built-in thresholds, tuned against recorded days.
// Local-time rules are evaluated in tz; an unknown zone falls back to UTC.
func Default(tz string) *Analyzers {
	if _, err := time.LoadLocation(tz); tz == "" || err != nil {
		tz = "UTC"
	}
	a := &Analyzers{
		Timezone:     tz,
		MaxAccuracyM: 150,
		Golf: &Golf{
			Thresholds: Thresholds{
				Enabled:            true,
				MinMPS:             0.7,
				MaxMPS:             2.8,
				TypicalMPS:         1.4,
				AllowDwell:         true,
				StationaryMaxMPS:   0.3,
				MinMovingFraction:  0.4,
				MinSessionDuration: dur(2 * time.Hour),
				MaxSessionDuration: dur(6 * time.Hour),
				TypicalDuration:    dur(4 * time.Hour),
				GapTolerance:       dur(10 * time.Minute),
				LocationCategories: []string{"golf_course"},
				Windows:            []localtime.Window{{Days: localtime.EveryDay, Start: clock(6, 0), End: clock(19, 0)}},
				WindowSlack:        dur(2 * time.Hour),
				Weights: map[Factor]float64{
					FactorLocation:   0.35,
					FactorTimeWindow: 0.20,
					FactorVelocity:   0.15,
					FactorDuration:   0.15,
					FactorDwell:      0.15,
				},
			},
			MinDwells:        2,
			DwellMinDuration: dur(2 * time.Minute),
		},
		Parkrun: &Parkrun{
			Thresholds: Thresholds{
				Enabled:            true,
				MinMPS:             2.0,
				MaxMPS:             6.0,
				TypicalMPS:         3.3,
				MinSessionDuration: dur(12 * time.Minute),
				MaxSessionDuration: dur(75 * time.Minute),
				TypicalDuration:    dur(25 * time.Minute),
				GapTolerance:       dur(2 * time.Minute),
				LocationCategories: []string{"parkrun"},
				Windows:            []localtime.Window{{Days: localtime.DaysOf(time.Saturday), Start: clock(8, 45), End: clock(9, 30)}},
				WindowSlack:        dur(30 * time.Minute),
				Weights: map[Factor]float64{
					FactorLocation:   0.30,
					FactorTimeWindow: 0.25,
					FactorVelocity:   0.15,
					FactorDuration:   0.10,
					FactorDistance:   0.20,
				},
			},
			TargetDistanceM: 5000,
			ReportOtherRuns: true,
		},
		Commute: &Commute{
			Thresholds: Thresholds{
				Enabled:            true,
				MinMPS:             10,
				MaxMPS:             40,
				TypicalMPS:         20,
				MinSessionDuration: dur(10 * time.Minute),
				MaxSessionDuration: dur(2 * time.Hour),
				TypicalDuration:    dur(40 * time.Minute),
				GapTolerance:       dur(10 * time.Minute),
				WindowSlack:        dur(90 * time.Minute),
				Weights: map[Factor]float64{
					FactorEndpoints:  0.40,
					FactorTimeWindow: 0.25,
					FactorVelocity:   0.20,
					FactorDuration:   0.15,
				},
			},
			OriginCategories:      []string{"home"},
			DestinationCategories: []string{"office"},
			EndpointSlackM:        1000,
			OutboundWindows:       []localtime.Window{{Days: localtime.Workdays, Start: clock(6, 0), End: clock(10, 0)}},
			ReturnWindows:         []localtime.Window{{Days: localtime.Workdays, Start: clock(15, 30), End: clock(20, 0)}},
		},
		DogWalking: &DogWalking{
			Thresholds: Thresholds{
				Enabled:            true,
				MinMPS:             0.5,
				MaxMPS:             1.8,
				TypicalMPS:         1.1,
				AllowDwell:         true,
				StationaryMaxMPS:   0.2,
				MinMovingFraction:  0.5,
				MinSessionDuration: dur(15 * time.Minute),
				MaxSessionDuration: dur(2 * time.Hour),
				TypicalDuration:    dur(40 * time.Minute),
				GapTolerance:       dur(5 * time.Minute),
				LocationCategories: []string{"dog_walk", "park"},
				Windows: []localtime.Window{
					{Days: localtime.EveryDay, Start: clock(6, 0), End: clock(9, 30)},
					{Days: localtime.EveryDay, Start: clock(17, 0), End: clock(21, 0)},
				},
				WindowSlack: dur(90 * time.Minute),
				Weights: map[Factor]float64{
					FactorLocation:   0.20,
					FactorTimeWindow: 0.20,
					FactorVelocity:   0.20,
					FactorDuration:   0.10,
					FactorLoop:       0.30,
				},
			},
			AnchorCategories: []string{"home", "dog_walk"},
			MaxLoopGapM:      400,
		},
		Snowboarding: &Snowboarding{
			Thresholds: Thresholds{
				Enabled:            true,
				MinMPS:             1.0,
				MaxMPS:             25,
				TypicalMPS:         6,
				MinSessionDuration: dur(time.Hour),
				MaxSessionDuration: dur(9 * time.Hour),
				TypicalDuration:    dur(4 * time.Hour),
				GapTolerance:       dur(20 * time.Minute),
				LocationCategories: []string{"ski_resort"},
				Windows:            []localtime.Window{{Days: localtime.EveryDay, Start: clock(8, 0), End: clock(16, 30)}},
				WindowSlack:        dur(2 * time.Hour),
				Weights: map[Factor]float64{
					FactorLocation:   0.25,
					FactorTimeWindow: 0.10,
					FactorVelocity:   0.10,
					FactorDuration:   0.10,
					FactorRuns:       0.30,
					FactorVertical:   0.15,
				},
			},
			MinRuns:           2,
			ExpectedRuns:      8,
			LiftMinClimbMPS:   0.25,
			DescentMinDropMPS: 0.3,
			DescentMinMPS:     2.0,
			MinLiftGainM:      30,
			MinRunVerticalM:   50,
			ExpectedVerticalM: 2000,
		},
	}
	if err := a.validate("built-in defaults"); err != nil {
		// The built-in values are covered by tests; reaching this is a programming error.
		panic(err)
	}
	return a
}
