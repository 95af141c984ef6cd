package camera

// Preset names for common configurations
const (
	PresetDefault  = "default"
	PresetLegacy   = "legacy"
	PresetLowPower = "lowpower"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:  DefaultConfig(),
		PresetLegacy:   LegacyConfig(),
		PresetLowPower: LowPowerConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, PresetLegacy, PresetLowPower}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LegacyConfig returns a 640x480 capture for cameras that refuse 320x240.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// LowPowerConfig trades resolution and rate for battery life.
func LowPowerConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 160
	cfg.Height = 120
	cfg.Framerate = 10
	cfg.Quality = 70
	return cfg
}
