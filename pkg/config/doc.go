// Package config loads typed configuration from environment variables.
//
// Configuration structs declare their variables with caarlos0/env tags:
//
//	type Config struct {
//		Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//		DSN  string `env:"PG_CONN_URL,required"`
//	}
//
// Load parses a struct once per type and process, after loading a .env file
// from the working directory when one exists (joho/godotenv). Values already
// present in the environment take precedence over the file. LoadEnv loads
// explicit .env files, and MustLoad panics instead of returning an error for
// settings the service cannot start without.
package config
