package terminal

import (
	"fmt"
	"math"
	"strings"

	"terminalsim/pkg/apperror"
)

// Dwell-time method tags (spec.md §4.2.1).
const (
	DwellGamma       = "gamma"
	DwellExponential = "exponential"
	DwellNormal      = "normal"
	DwellLognormal   = "lognormal"
)

// Defaults mirror original_source/src/dwell_time/container_dwell_time.cpp's
// getDepartureTime: roughly two days of dwell, in seconds.
const (
	defaultGammaShape      = 2.0
	defaultGammaScale      = 24.0 * 3600.0
	defaultExpScale        = 2.0 * 24.0 * 3600.0
	defaultNormalMean      = 2.0 * 24.0 * 3600.0
	defaultNormalStdDev    = 0.5 * 24.0 * 3600.0
	defaultLognormalSigma  = 0.25
)

func defaultLognormalMean() float64 {
	return math.Log(2.0 * 24.0 * 3600.0)
}

// DwellTimeConfig is a terminal's configured stochastic dwell-time
// distribution: a method tag plus a numeric parameter map (spec.md §3).
type DwellTimeConfig struct {
	Method     string
	Parameters map[string]float64
}

func paramOr(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}

// sampleGamma draws a non-negative dwell time in seconds from Gamma(shape,scale).
func sampleGamma(shape, scale float64) (float64, error) {
	if shape <= 0 || scale <= 0 {
		return 0, apperror.New(apperror.CodeInvalidArgs,
			fmt.Sprintf("gamma distribution requires positive shape and scale, got shape=%v scale=%v", shape, scale))
	}
	return newGammaDist(shape, scale).Rand(), nil
}

// sampleExponential draws from Exponential(scale), rate = 1/scale.
func sampleExponential(scale float64) (float64, error) {
	if scale <= 0 {
		return 0, apperror.New(apperror.CodeInvalidArgs,
			fmt.Sprintf("exponential distribution requires positive scale, got %v", scale))
	}
	return drawExpFloat64() * scale, nil
}

// sampleNormal draws from Normal(mean, stdDev), rejection-truncated at 0.
func sampleNormal(mean, stdDev float64) (float64, error) {
	if stdDev <= 0 {
		return 0, apperror.New(apperror.CodeInvalidArgs,
			fmt.Sprintf("normal distribution requires positive std dev, got %v", stdDev))
	}
	for {
		v := mean + stdDev*drawNormFloat64()
		if v >= 0 {
			return v, nil
		}
	}
}

// sampleLognormal draws from Lognormal(muLog, sigmaLog).
func sampleLognormal(muLog, sigmaLog float64) (float64, error) {
	if sigmaLog <= 0 {
		return 0, apperror.New(apperror.CodeInvalidArgs,
			fmt.Sprintf("lognormal distribution requires positive sigma, got %v", sigmaLog))
	}
	return math.Exp(muLog + sigmaLog*drawNormFloat64()), nil
}

// sampleDwell draws a raw dwell-time duration (seconds) for the given method
// and parameter map, falling back to Gamma defaults for an unknown method
// (spec.md §4.2.2).
func sampleDwell(method string, params map[string]float64) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case DwellGamma:
		return sampleGamma(paramOr(params, "shape", defaultGammaShape), paramOr(params, "scale", defaultGammaScale))
	case DwellExponential:
		return sampleExponential(paramOr(params, "scale", defaultExpScale))
	case DwellNormal:
		return sampleNormal(paramOr(params, "mean", defaultNormalMean), paramOr(params, "std_dev", defaultNormalStdDev))
	case DwellLognormal:
		return sampleLognormal(paramOr(params, "mean", defaultLognormalMean()), paramOr(params, "sigma", defaultLognormalSigma))
	default:
		return sampleGamma(defaultGammaShape, defaultGammaScale)
	}
}

// meanDwellSeconds returns the distribution's expected value, used by
// EstimateHandlingTime (spec.md §4.2 "derived once per call from the
// configured distribution, hours"). Unlike sampleDwell, this is
// deterministic — no PRNG draw.
func meanDwellSeconds(method string, params map[string]float64) float64 {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case DwellExponential:
		return paramOr(params, "scale", defaultExpScale)
	case DwellNormal:
		return paramOr(params, "mean", defaultNormalMean)
	case DwellLognormal:
		mu := paramOr(params, "mean", defaultLognormalMean())
		sigma := paramOr(params, "sigma", defaultLognormalSigma)
		return math.Exp(mu + sigma*sigma/2)
	case DwellGamma:
		fallthrough
	default:
		shape := paramOr(params, "shape", defaultGammaShape)
		scale := paramOr(params, "scale", defaultGammaScale)
		return shape * scale
	}
}

// GetDepartureTime composes an arrival time with a drawn dwell-time sample
// (spec.md §4.2.2). Unknown methods fall back to Gamma defaults.
func GetDepartureTime(arrival float64, method string, params map[string]float64) (float64, error) {
	dwell, err := sampleDwell(method, params)
	if err != nil {
		return 0, err
	}
	return arrival + dwell, nil
}
