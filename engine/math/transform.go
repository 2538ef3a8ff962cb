package math

import "github.com/go-gl/mathgl/mgl32"

// Transform is a position, rotation and scale with an optional parent. The
// local matrix is cached until one of the components changes.
type Transform struct {
	/** @brief The position in the world. */
	Position mgl32.Vec3
	/** @brief The rotation in the world. */
	Rotation mgl32.Quat
	/** @brief The scale in the world. */
	Scale mgl32.Vec3
	/**
	 * @brief Indicates if the position, rotation or scale have changed,
	 * indicating that the local matrix needs to be recalculated.
	 */
	IsDirty bool
	Local   mgl32.Mat4
	Parent  *Transform
}

func TransformCreate() *Transform {
	return TransformFromPositionRotationScale(mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
}

func TransformFromPosition(position mgl32.Vec3) *Transform {
	return TransformFromPositionRotationScale(position, mgl32.QuatIdent(), mgl32.Vec3{1, 1, 1})
}

func TransformFromPositionRotationScale(position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) *Transform {
	t := &Transform{Local: mgl32.Ident4()}
	t.SetPositionRotationScale(position, rotation, scale)
	return t
}

func (t *Transform) SetPosition(position mgl32.Vec3) {
	t.Position = position
	t.IsDirty = true
}

func (t *Transform) Translate(translation mgl32.Vec3) {
	t.Position = t.Position.Add(translation)
	t.IsDirty = true
}

func (t *Transform) SetRotation(rotation mgl32.Quat) {
	t.Rotation = rotation
	t.IsDirty = true
}

func (t *Transform) Rotate(rotation mgl32.Quat) {
	t.Rotation = t.Rotation.Mul(rotation).Normalize()
	t.IsDirty = true
}

func (t *Transform) SetScale(scale mgl32.Vec3) {
	t.Scale = scale
	t.IsDirty = true
}

func (t *Transform) SetPositionRotationScale(position mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) {
	t.Position = position
	t.Rotation = rotation
	t.Scale = scale
	t.IsDirty = true
}

// GetLocal returns translation * rotation * scale.
func (t *Transform) GetLocal() mgl32.Mat4 {
	if t == nil {
		return mgl32.Ident4()
	}
	if t.IsDirty {
		tr := mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z())
		s := mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z())
		t.Local = tr.Mul4(t.Rotation.Mat4()).Mul4(s)
		t.IsDirty = false
	}
	return t.Local
}

func (t *Transform) GetWorld() mgl32.Mat4 {
	if t == nil {
		return mgl32.Ident4()
	}
	l := t.GetLocal()
	if t.Parent != nil {
		return t.Parent.GetWorld().Mul4(l)
	}
	return l
}
