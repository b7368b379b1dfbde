// Package config loads the YAML configuration shared by the example program and the fx module.
package config
