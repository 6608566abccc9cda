// SPDX-License-Identifier: MIT

// Package config provides configuration management for vodsaver.
//
// All settings come from the process environment. Callers that want .env
// support load the file into the environment before calling Load.
package config
