package ctype

// Payload is the lane data type of a canonical type. shape is deliberately
// absent: shapes are resources in a parallel namespace and are never a
// value-expression lane (spec.md §3.1).
type Payload uint8

const (
	Float Payload = iota
	Int
	Bool
	Vec2
	Vec3
	Color
	CameraProjection
)

func (p Payload) String() string {
	switch p {
	case Float:
		return "float"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Vec2:
		return "vec2"
	case Vec3:
		return "vec3"
	case Color:
		return "color"
	case CameraProjection:
		return "cameraProjection"
	default:
		return "?"
	}
}

// PayloadStride is the only source of stride (spec.md §3.1, Testable
// Property 6: no payload variant stores a stride field). The switch covers
// every Payload: adding a Payload case without adding it here falls to the
// default branch's panic, which TestPayloadStrideExhaustive exercises.
func PayloadStride(p Payload) int {
	switch p {
	case Float:
		return 1
	case Int:
		return 1
	case Bool:
		return 1
	case Vec2:
		return 2
	case Vec3:
		return 3
	case Color:
		return 4
	case CameraProjection:
		return 1
	default:
		panic("ctype: PayloadStride: non-exhaustive payload switch")
	}
}

// AngleUnit is the inner unit for Unit.Angle.
type AngleUnit uint8

const (
	Radians AngleUnit = iota
	Degrees
	Phase01
)

// TimeUnit is the inner unit for Unit.Time.
type TimeUnit uint8

const (
	Milliseconds TimeUnit = iota
	Seconds
)

// SpaceFrame is the coordinate frame for Unit.Space.
type SpaceFrame uint8

const (
	NDC SpaceFrame = iota
	World
	View
)

// ColorSpace is the inner unit for Unit.Color.
type ColorSpace uint8

const RGBA01 ColorSpace = 0

// UnitKind discriminates the structured unit (spec.md §3.1 table).
type UnitKind uint8

const (
	UnitNone UnitKind = iota
	UnitScalar
	UnitNorm01
	UnitCount
	UnitAngle
	UnitTime
	UnitSpace
	UnitColor
)

// Unit is structured, not flat. Only the fields relevant to Kind are
// meaningful; this mirrors a tagged union without resorting to interfaces,
// since every inner shape here is a closed set of plain value types and
// equality must stay a plain comparison.
type Unit struct {
	Kind UnitKind

	Angle AngleUnit  // valid iff Kind == UnitAngle
	Time  TimeUnit   // valid iff Kind == UnitTime
	Space SpaceUnit  // valid iff Kind == UnitSpace
	Color ColorSpace // valid iff Kind == UnitColor
}

// SpaceUnit is Unit.Space's inner shape: {frame, dims}.
type SpaceUnit struct {
	Frame SpaceFrame
	Dims  int // 2 or 3
}

func NoneUnit() Unit   { return Unit{Kind: UnitNone} }
func ScalarUnit() Unit { return Unit{Kind: UnitScalar} }
func Norm01Unit() Unit { return Unit{Kind: UnitNorm01} }
func CountUnit() Unit  { return Unit{Kind: UnitCount} }

func AngleUnitOf(u AngleUnit) Unit { return Unit{Kind: UnitAngle, Angle: u} }
func TimeUnitOf(u TimeUnit) Unit   { return Unit{Kind: UnitTime, Time: u} }
func SpaceUnitOf(frame SpaceFrame, dims int) Unit {
	return Unit{Kind: UnitSpace, Space: SpaceUnit{Frame: frame, Dims: dims}}
}
func ColorUnitOf(cs ColorSpace) Unit { return Unit{Kind: UnitColor, Color: cs} }

// UnitEq is deep structural unit comparison (spec.md §3.1). Because Unit
// has no pointers, slices, or maps, Go's == already performs this deep
// comparison field by field; UnitEq exists as the named operation the spec
// calls out so callers never reach for reflect.DeepEqual by habit.
func UnitEq(a, b Unit) bool { return a == b }
