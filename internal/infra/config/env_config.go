package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v11"
)

var (
	// ErrInvalidConfig is returned when the provided config is not a pointer to a struct
	// that embeds EnvConfig.
	ErrInvalidConfig = errors.New("config must be a pointer to a struct embedding EnvConfig")

	// ErrVarNotSet is returned when a required environment variable is not set or empty.
	ErrVarNotSet = errors.New("env var not set")

	// ErrUnsupportedVarType is returned when an environment variable cannot be parsed
	// into the field's Go type.
	ErrUnsupportedVarType = errors.New("unsupported env var type")
)

// EnvConfig is a base type that must be embedded in configuration structs
// to enable environment variable parsing.
type EnvConfig struct {
	namespace string
}

// Namespace returns the namespace the config was parsed with.
func (c EnvConfig) Namespace() string {
	return c.namespace
}

//nolint:varnamelen
func getEnvConfig(cfg any) (*EnvConfig, error) {
	v := reflect.ValueOf(cfg)

	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, ErrInvalidConfig
	}

	v = v.Elem()
	t := v.Type()

	for i := range t.NumField() {
		field := t.Field(i)
		//nolint:exhaustruct,forcetypeassert
		if field.Anonymous && field.Type == reflect.TypeOf(EnvConfig{}) {
			if ev := v.Field(i); ev.CanAddr() {
				return ev.Addr().Interface().(*EnvConfig), nil
			}
		}
	}

	return nil, ErrInvalidConfig
}

// Parse loads configuration values from environment variables into the provided struct.
// The struct must embed EnvConfig and use `env`, `envDefault` and `envPrefix` tags.
// Variables are looked up below the namespace; for namespace "APP_SVC" the variable
// APP_SVC_X wins over APP_X. With an empty namespace, bare names are used.
// Missing required variables are reported as ErrVarNotSet.
func Parse(ctx context.Context, cfg any, namespace string) error {
	envConfig, err := getEnvConfig(cfg)
	if err != nil {
		return fmt.Errorf("get env config: %w", err)
	}

	envConfig.namespace = namespace

	//nolint:exhaustruct
	opts := env.Options{
		Environment: namespacedEnvironment(namespace, os.Environ()),
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", classify(err))
	}

	return nil
}

// namespacedEnvironment strips namespace prefixes from the environment, applying
// less specific prefixes first so more specific ones override them.
func namespacedEnvironment(namespace string, environ []string) map[string]string {
	vars := make(map[string]string, len(environ))

	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	if namespace == "" {
		return vars
	}

	out := make(map[string]string)
	nsParts := strings.Split(namespace, "_")

	for i := 1; i <= len(nsParts); i++ {
		prefix := strings.Join(nsParts[:i], "_") + "_"

		for k, v := range vars {
			if name, ok := strings.CutPrefix(k, prefix); ok && name != "" {
				out[name] = v
			}
		}
	}

	return out
}

func classify(err error) error {
	var aggErr env.AggregateError
	if !errors.As(err, &aggErr) {
		return err
	}

	for _, e := range aggErr.Errors {
		switch {
		case errors.As(e, new(env.VarIsNotSetError)), errors.As(e, new(env.EmptyVarError)):
			return errors.Join(ErrVarNotSet, err)
		case errors.As(e, new(env.ParseError)), errors.As(e, new(env.NoParserError)):
			return errors.Join(ErrUnsupportedVarType, err)
		}
	}

	return err
}
