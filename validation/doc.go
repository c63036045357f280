// Package validation validates configuration structs using struct tags
// (go-playground/validator).
//
// Field names in error messages come from the mapstructure tag, so they match
// the keys users write in config files:
//
//	type PipelineConfig struct {
//	    FPS  int `mapstructure:"fps" validate:"gt=0,lte=240"`
//	    LEDs int `mapstructure:"leds" validate:"required,min=4"`
//	}
//	err := validation.Validate(cfg)
package validation
