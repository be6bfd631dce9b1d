package lutcam

import (
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Kernels for overlay scaling through x/image/draw; At receives a non-negative distance.
var (
	bicubicKernel  = &draw.Kernel{Support: 2, At: cubicKernel}
	mitchellKernel = &draw.Kernel{Support: 2, At: mitchellNetravaliKernel}
	lanczos2       = &draw.Kernel{Support: 2, At: lanczos2Kernel}
	lanczos3       = &draw.Kernel{Support: 3, At: lanczos3Kernel}
)

func scaler(interp Interpolation) draw.Interpolator {
	switch interp {
	case InterpolationBilinear:
		return draw.BiLinear
	case InterpolationBicubic:
		return bicubicKernel
	case InterpolationMitchellNetravali:
		return mitchellKernel
	case InterpolationLanczos2:
		return lanczos2
	case InterpolationLanczos3:
		return lanczos3
	default:
		return draw.NearestNeighbor
	}
}

func resampler(interp Interpolation) resize.InterpolationFunction {
	switch interp {
	case InterpolationBilinear:
		return resize.Bilinear
	case InterpolationBicubic:
		return resize.Bicubic
	case InterpolationMitchellNetravali:
		return resize.MitchellNetravali
	case InterpolationLanczos2:
		return resize.Lanczos2
	case InterpolationLanczos3:
		return resize.Lanczos3
	default:
		return resize.NearestNeighbor
	}
}

func cubicKernel(in float64) float64 {
	in = math.Abs(in)
	if in <= 1 {
		return in*in*(1.5*in-2.5) + 1.0
	}
	if in <= 2 {
		return in*(in*(2.5-0.5*in)-4.0) + 2.0
	}
	return 0
}

func mitchellNetravaliKernel(in float64) float64 {
	in = math.Abs(in)
	if in <= 1 {
		return (7.0*in*in*in - 12.0*in*in + 5.33333333333) * 0.16666666666
	}
	if in <= 2 {
		return (-2.33333333333*in*in*in + 12.0*in*in - 20.0*in + 10.6666666667) * 0.16666666666
	}
	return 0
}

func sinc(x float64) float64 {
	x = math.Abs(x) * math.Pi
	if x >= 1.220703e-4 {
		return math.Sin(x) / x
	}
	return 1
}

func lanczos2Kernel(in float64) float64 {
	if in > -2 && in < 2 {
		return sinc(in) * sinc(in*0.5)
	}
	return 0
}

func lanczos3Kernel(in float64) float64 {
	if in > -3 && in < 3 {
		return sinc(in) * sinc(in*0.3333333333333333)
	}
	return 0
}
