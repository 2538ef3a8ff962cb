package systems

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine/core"
	pmath "github.com/spaghettifunk/prism/engine/math"
)

const (
	/** @brief The name of the default camera. */
	DEFAULT_CAMERA_NAME string = "default"

	defaultFov  float32 = 45
	defaultNear float32 = 0.001
	defaultFar  float32 = 300
	// 89 degrees, keeps the view away from gimbal lock.
	pitchLimit float32 = 89
)

/**
 * @brief A perspective camera described by a position and yaw/pitch angles
 * in degrees. Its aspect ratio follows the window through OnResize.
 */
type Camera struct {
	Position mgl32.Vec3
	Yaw      float32
	Pitch    float32
	Fov      float32
	Near     float32
	Far      float32
	Aspect   float32
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.Position = mgl32.Vec3{0, 0, 2}
	c.Yaw = -90
	c.Pitch = 0
	c.Fov = defaultFov
	c.Near = defaultNear
	c.Far = defaultFar
	c.Aspect = 1
}

// OnResize keeps the aspect ratio in step with the framebuffer. A minimized
// window leaves the last aspect in place.
func (c *Camera) OnResize(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	c.Aspect = float32(width) / float32(height)
}

func (c *Camera) Forward() mgl32.Vec3 {
	yaw := mgl32.DegToRad(c.Yaw)
	pitch := mgl32.DegToRad(c.Pitch)
	return mgl32.Vec3{
		pmath.Cos(yaw) * pmath.Cos(pitch),
		pmath.Sin(pitch),
		pmath.Sin(yaw) * pmath.Cos(pitch),
	}.Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.Forward().Cross(mgl32.Vec3{0, 1, 0}).Normalize()
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Forward()), mgl32.Vec3{0, 1, 0})
}

// Projection returns a perspective matrix for Vulkan clip space, where y
// points down.
func (c *Camera) Projection() mgl32.Mat4 {
	proj := mgl32.Perspective(mgl32.DegToRad(c.Fov), c.Aspect, c.Near, c.Far)
	proj[5] *= -1
	return proj
}

func (c *Camera) MoveForward(amount float32) {
	c.Position = c.Position.Add(c.Forward().Mul(amount))
}

func (c *Camera) MoveBackward(amount float32) {
	c.MoveForward(-amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.Position = c.Position.Add(c.Right().Mul(amount))
}

func (c *Camera) MoveLeft(amount float32) {
	c.MoveRight(-amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.Position = c.Position.Add(mgl32.Vec3{0, amount, 0})
}

func (c *Camera) AddYaw(amount float32) {
	c.Yaw += amount
}

func (c *Camera) AddPitch(amount float32) {
	c.Pitch = pmath.Clamp(c.Pitch+amount, -pitchLimit, pitchLimit)
}

func (c *Camera) Zoom(amount float32) {
	c.Fov = pmath.Clamp(c.Fov-amount, 1, 90)
}

type cameraLookup struct {
	referenceCount uint16
	camera         *Camera
}

// CameraSystem hands out reference counted named cameras plus a default
// camera that always exists.
type CameraSystem struct {
	maxCameraCount int
	cameras        map[string]*cameraLookup
	// A default, non-registered camera that always exists as a fallback.
	defaultCamera *Camera
}

var ErrTooManyCameras = errors.Mark(errors.New("camera system is full"), core.ErrResourceExhausted)

func NewCameraSystem(maxCameraCount int) (*CameraSystem, error) {
	if maxCameraCount < 1 {
		return nil, core.NewConfigurationError("max camera count must be > 0")
	}
	return &CameraSystem{
		maxCameraCount: maxCameraCount,
		cameras:        make(map[string]*cameraLookup, maxCameraCount),
		defaultCamera:  NewCamera(),
	}, nil
}

/**
 * @brief Acquires a camera by name, creating it on first use.
 * Internal reference counter is incremented.
 */
func (cs *CameraSystem) Acquire(name string) (*Camera, error) {
	if name == DEFAULT_CAMERA_NAME {
		return cs.defaultCamera, nil
	}
	lookup, ok := cs.cameras[name]
	if !ok {
		if len(cs.cameras) >= cs.maxCameraCount {
			core.LogError("cannot create camera '%s': %d cameras in use", name, len(cs.cameras))
			return nil, ErrTooManyCameras
		}
		core.LogDebug("Creating new camera named '%s'...", name)
		lookup = &cameraLookup{camera: NewCamera()}
		cs.cameras[name] = lookup
	}
	lookup.referenceCount++
	return lookup.camera, nil
}

/**
 * @brief Releases a camera with the given name. When the reference count
 * reaches 0 the camera is dropped and its name may be reused.
 */
func (cs *CameraSystem) Release(name string) {
	if name == DEFAULT_CAMERA_NAME {
		core.LogDebug("Cannot release default camera. Nothing was done.")
		return
	}
	lookup, ok := cs.cameras[name]
	if !ok {
		core.LogWarn("Camera release failed lookup for '%s'. Nothing was done.", name)
		return
	}
	lookup.referenceCount--
	if lookup.referenceCount == 0 {
		delete(cs.cameras, name)
	}
}

func (cs *CameraSystem) GetDefault() *Camera {
	return cs.defaultCamera
}

func (cs *CameraSystem) Len() int {
	return len(cs.cameras)
}
