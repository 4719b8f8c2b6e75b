package landmark

// Reference poses used by the default vocabulary, the send command and tests.
// Coordinates are image-normalized for a right hand, palm facing the camera.

// ThumbsUp returns a pose with the thumb extended upward and the other fingers curled.
func ThumbsUp() HandFrame {
	f := HandFrame{Side: SideRight}

	f.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	f.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.0}
	f.Points[ThumbMCP] = Point3D{X: 0.58, Y: 0.65, Z: 0.0}
	f.Points[ThumbIP] = Point3D{X: 0.58, Y: 0.50, Z: 0.0}
	f.Points[ThumbTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}

	curledFingers(&f)
	return f
}

// OpenPalm returns a pose with all five fingers spread and extended.
func OpenPalm() HandFrame {
	f := HandFrame{Side: SideRight}

	f.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	f.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	f.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
	f.Points[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
	f.Points[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}

	extendIndex(&f)
	extendMiddle(&f)

	f.Points[RingMCP] = Point3D{X: 0.45, Y: 0.68, Z: 0.0}
	f.Points[RingPIP] = Point3D{X: 0.43, Y: 0.55, Z: 0.0}
	f.Points[RingDIP] = Point3D{X: 0.42, Y: 0.45, Z: 0.0}
	f.Points[RingTip] = Point3D{X: 0.42, Y: 0.35, Z: 0.0}

	f.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.70, Z: 0.0}
	f.Points[PinkyPIP] = Point3D{X: 0.37, Y: 0.60, Z: 0.0}
	f.Points[PinkyDIP] = Point3D{X: 0.35, Y: 0.50, Z: 0.0}
	f.Points[PinkyTip] = Point3D{X: 0.34, Y: 0.42, Z: 0.0}

	return f
}

// Fist returns a pose with every finger curled and the thumb folded across them.
func Fist() HandFrame {
	f := HandFrame{Side: SideRight}

	f.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	f.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.0}
	f.Points[ThumbMCP] = Point3D{X: 0.58, Y: 0.70, Z: -0.02}
	f.Points[ThumbIP] = Point3D{X: 0.55, Y: 0.67, Z: -0.05}
	f.Points[ThumbTip] = Point3D{X: 0.51, Y: 0.67, Z: -0.06}

	curledFingers(&f)
	return f
}

// PointUp returns a pose with only the index finger extended.
func PointUp() HandFrame {
	f := HandFrame{Side: SideRight}

	f.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	f.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.0}
	f.Points[ThumbMCP] = Point3D{X: 0.58, Y: 0.70, Z: -0.02}
	f.Points[ThumbIP] = Point3D{X: 0.55, Y: 0.67, Z: -0.05}
	f.Points[ThumbTip] = Point3D{X: 0.51, Y: 0.67, Z: -0.06}

	curledFingers(&f)
	extendIndex(&f)
	return f
}

// VSign returns a pose with the index and middle fingers extended apart.
func VSign() HandFrame {
	f := PointUp()

	f.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.66, Z: 0.0}
	f.Points[MiddlePIP] = Point3D{X: 0.47, Y: 0.53, Z: 0.0}
	f.Points[MiddleDIP] = Point3D{X: 0.45, Y: 0.42, Z: 0.0}
	f.Points[MiddleTip] = Point3D{X: 0.43, Y: 0.31, Z: 0.0}
	return f
}

func extendIndex(f *HandFrame) {
	f.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.68, Z: 0.0}
	f.Points[IndexPIP] = Point3D{X: 0.57, Y: 0.55, Z: 0.0}
	f.Points[IndexDIP] = Point3D{X: 0.58, Y: 0.45, Z: 0.0}
	f.Points[IndexTip] = Point3D{X: 0.58, Y: 0.35, Z: 0.0}
}

func extendMiddle(f *HandFrame) {
	f.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.66, Z: 0.0}
	f.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.52, Z: 0.0}
	f.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.40, Z: 0.0}
	f.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.28, Z: 0.0}
}

// curledFingers folds index through pinky toward the palm.
func curledFingers(f *HandFrame) {
	f.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.70, Z: -0.02}
	f.Points[IndexPIP] = Point3D{X: 0.55, Y: 0.68, Z: -0.05}
	f.Points[IndexDIP] = Point3D{X: 0.52, Y: 0.70, Z: -0.04}
	f.Points[IndexTip] = Point3D{X: 0.50, Y: 0.72, Z: -0.02}

	f.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.68, Z: -0.02}
	f.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.66, Z: -0.05}
	f.Points[MiddleDIP] = Point3D{X: 0.47, Y: 0.68, Z: -0.04}
	f.Points[MiddleTip] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}

	f.Points[RingMCP] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}
	f.Points[RingPIP] = Point3D{X: 0.45, Y: 0.68, Z: -0.05}
	f.Points[RingDIP] = Point3D{X: 0.42, Y: 0.70, Z: -0.04}
	f.Points[RingTip] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}

	f.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}
	f.Points[PinkyPIP] = Point3D{X: 0.40, Y: 0.70, Z: -0.05}
	f.Points[PinkyDIP] = Point3D{X: 0.37, Y: 0.72, Z: -0.04}
	f.Points[PinkyTip] = Point3D{X: 0.35, Y: 0.74, Z: -0.02}
}

// Poses maps the reference pose names to their constructors.
var Poses = map[string]func() HandFrame{
	"thumbs_up": ThumbsUp,
	"open_palm": OpenPalm,
	"fist":      Fist,
	"point_up":  PointUp,
	"v_sign":    VSign,
}
