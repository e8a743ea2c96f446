package uhdrbake

type rgb struct {
	r, g, b float32
}

func (v rgb) scale(k float32) rgb {
	return rgb{v.r * k, v.g * k, v.b * k}
}

func (v rgb) clampMax(hi float32) rgb {
	return rgb{clampRange(v.r, 0, hi), clampRange(v.g, 0, hi), clampRange(v.b, 0, hi)}
}

func clampRange(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// luminance uses the Y row of the gamut's RGB to XYZ matrix.
func luminance(v rgb, g ColorGamut) float32 {
	_, y, _ := rgbToXYZ(v, g)
	return y
}

// convertLinearGamut maps linear RGB between gamuts through D65 XYZ.
func convertLinearGamut(v rgb, from, to ColorGamut) rgb {
	if from == to || from == GamutUnspecified || to == GamutUnspecified {
		return v
	}
	x, y, z := rgbToXYZ(v, from)
	return xyzToRGB(x, y, z, to)
}

func rgbToXYZ(v rgb, from ColorGamut) (float32, float32, float32) {
	switch from {
	case GamutDisplayP3:
		return 0.48657095*v.r + 0.2656677*v.g + 0.19821729*v.b,
			0.22897457*v.r + 0.69173855*v.g + 0.07928691*v.b,
			0.04511338*v.g + 1.0439444*v.b
	case GamutBT2100:
		return 0.636958*v.r + 0.144617*v.g + 0.168881*v.b,
			0.262700*v.r + 0.677998*v.g + 0.059302*v.b,
			0.028073*v.g + 1.060985*v.b
	default:
		return 0.4123908*v.r + 0.35758433*v.g + 0.1804808*v.b,
			0.212639*v.r + 0.71516865*v.g + 0.07219232*v.b,
			0.019330818*v.r + 0.11919478*v.g + 0.95053214*v.b
	}
}

func xyzToRGB(x, y, z float32, to ColorGamut) rgb {
	switch to {
	case GamutDisplayP3:
		return rgb{
			r: 2.493497*x - 0.9313836*y - 0.4027108*z,
			g: -0.829489*x + 1.7626641*y + 0.023624685*z,
			b: 0.03584583*x - 0.07617239*y + 0.9568845*z,
		}
	case GamutBT2100:
		return rgb{
			r: 1.716651*x - 0.355671*y - 0.253366*z,
			g: -0.666684*x + 1.616481*y + 0.015769*z,
			b: 0.017640*x - 0.042771*y + 0.942103*z,
		}
	default:
		return rgb{
			r: 3.24097*x - 1.5373832*y - 0.49861076*z,
			g: -0.96924365*x + 1.8759675*y + 0.041555058*z,
			b: 0.05563008*x - 0.20397696*y + 1.0569715*z,
		}
	}
}
