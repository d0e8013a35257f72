package camera

import "errors"

var (
	// ErrCameraNotFound is returned when no camera has the id.
	ErrCameraNotFound = errors.New("camera: not found")

	// ErrCameraExists is returned when creating a camera whose id is taken.
	ErrCameraExists = errors.New("camera: already exists")

	// ErrNoResult is returned by LatestResult when the camera has no results.
	ErrNoResult = errors.New("camera: no result")

	// ErrInvalidCamera wraps every camera or result validation failure.
	ErrInvalidCamera = errors.New("camera: invalid")
)
