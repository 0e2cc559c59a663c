// Package config loads itemsense configuration from a YAML file, the
// environment and built-in defaults.
package config

import "os"

// Environment variables consulted by ApplyEnv.
const (
	EnvModelsDir  = "ITEMSENSE_MODELS_DIR"
	EnvSerialPort = "ITEMSENSE_SERIAL_PORT"
	EnvCamera     = "ITEMSENSE_CAMERA"
	EnvConfig     = "ITEMSENSE_CONFIG"
)

// ModelsDir returns the models directory from ITEMSENSE_MODELS_DIR.
// Falls back to the provided default if not set.
func ModelsDir(defaultDir string) string {
	return envOr(EnvModelsDir, defaultDir)
}

// SerialPort returns the serial device from ITEMSENSE_SERIAL_PORT.
// Falls back to the provided default if not set.
func SerialPort(defaultPort string) string {
	return envOr(EnvSerialPort, defaultPort)
}

// CameraDevice returns the camera device from ITEMSENSE_CAMERA.
// Falls back to the provided default if not set.
func CameraDevice(defaultDevice string) string {
	return envOr(EnvCamera, defaultDevice)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
