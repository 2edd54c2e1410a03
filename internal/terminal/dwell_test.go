package terminal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMeanDwellSeconds_GammaDefaults(t *testing.T) {
	mean := meanDwellSeconds(DwellGamma, nil)
	require.Equal(t, defaultGammaShape*defaultGammaScale, mean)
}

func TestMeanDwellSeconds_ExplicitParameters(t *testing.T) {
	mean := meanDwellSeconds(DwellGamma, map[string]float64{"shape": 3, "scale": 100})
	require.Equal(t, 300.0, mean)

	mean = meanDwellSeconds(DwellExponential, map[string]float64{"scale": 500})
	require.Equal(t, 500.0, mean)

	mean = meanDwellSeconds(DwellNormal, map[string]float64{"mean": 1000})
	require.Equal(t, 1000.0, mean)
}

func TestMeanDwellSeconds_UnknownMethodFallsBackToGamma(t *testing.T) {
	require.Equal(t, meanDwellSeconds(DwellGamma, nil), meanDwellSeconds("bogus", nil))
}

func TestSampleDwell_RejectsNonPositiveParameters(t *testing.T) {
	_, err := sampleGamma(0, 100)
	require.Error(t, err)

	_, err = sampleExponential(-1)
	require.Error(t, err)

	_, err = sampleNormal(100, 0)
	require.Error(t, err)

	_, err = sampleLognormal(0, -1)
	require.Error(t, err)
}

func TestSampleDwell_EachMethodReturnsNonNegative(t *testing.T) {
	for _, method := range []string{DwellGamma, DwellExponential, DwellNormal, DwellLognormal, "unknown"} {
		for i := 0; i < 50; i++ {
			v, err := sampleDwell(method, nil)
			require.NoError(t, err)
			require.GreaterOrEqual(t, v, 0.0, "method %s produced a negative dwell time", method)
		}
	}
}

func TestGetDepartureTime_AddsDwellToArrival(t *testing.T) {
	departure, err := GetDepartureTime(1000, DwellExponential, map[string]float64{"scale": 60})
	require.NoError(t, err)
	require.GreaterOrEqual(t, departure, 1000.0)
}
