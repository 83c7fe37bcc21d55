package models

// Settings are the user-editable toolkit settings consumed by the core
type Settings struct {
	AutoSave      bool              `yaml:"auto_save" json:"auto_save"`
	IncludeLogs   bool              `yaml:"include_logs" json:"include_logs"`
	RetentionDays int               `yaml:"retention_days" json:"retention_days" validate:"gte=0"`
	CustomPresets []ServicePreset   `yaml:"custom_presets" json:"custom_presets" validate:"dive"`
	ProgramPaths  map[string]string `yaml:"program_paths" json:"program_paths"`
}
