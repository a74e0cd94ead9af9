// Package config loads the RecruitChain process configuration from a JSON
// file. Relative paths are resolved against the directory of the file and
// secrets such as the node API key are read through environment variables.
package config
