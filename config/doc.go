// Package config provides configuration loading and validation for relay
// programs.
//
// It uses Viper to load a YAML file and environment variables, with an
// optional .env file loaded through godotenv. Environment variables override
// file values; nested keys are matched by splitting on underscores, so
// PIPELINE_FPS sets pipeline.fps.
//
// # Usage
//
//	var cfg MyConfig
//	err := config.LoadConfig("screenlight", &cfg, config.WithConfigFile(path))
package config
