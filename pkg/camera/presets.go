package camera

// Preset names for common leaf bands
const (
	PresetDefault = "default"
	PresetWide    = "wide"
	PresetStrict  = "strict"
	PresetHD      = "hd"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetWide:    WideBandConfig(),
		PresetStrict:  StrictBandConfig(),
		PresetHD:      HDConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, PresetWide, PresetStrict, PresetHD}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// WideBandConfig also counts yellowing and blue-green foliage.
func WideBandConfig() Config {
	cfg := DefaultConfig()
	cfg.Lower = HSV{H: 30, S: 40, V: 40}
	cfg.Upper = HSV{H: 90, S: 255, V: 255}
	return cfg
}

// StrictBandConfig ignores pale and dark pixels, for bright backgrounds.
func StrictBandConfig() Config {
	cfg := DefaultConfig()
	cfg.Lower = HSV{H: 50, S: 90, V: 70}
	cfg.Upper = HSV{H: 65, S: 255, V: 255}
	return cfg
}

// HDConfig captures at 1280x720 with the default band.
func HDConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}
