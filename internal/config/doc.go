// Package config loads the RewardPilot runtime configuration from a YAML file,
// applies environment overrides and fills in defaults so downstream packages
// never see zero values for timing or endpoint settings.
package config
