// Package camera stores the traffic cameras and the analytics results an
// external video processor reports for them.
//
// Cameras are not owner scoped. Results are append-only; readers only ever
// ask for the newest one per camera.
package camera
