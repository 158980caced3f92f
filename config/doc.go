// Package config loads the process configuration of the circulation tools from the environment
// and opens tuned database pools for the three supported drivers.
package config
