package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "MONET"

// Environment override keys, read as MONET_<KEY>
const (
	EnvDiscoveryDatabase = "DISCOVERY_DATABASE"
	EnvQueueDatabase     = "QUEUE_DATABASE"
	EnvTaskDatabase      = "TASK_DATABASE"
)

// ErrEmptyDescriptor is returned for a descriptor that decodes to nothing
var ErrEmptyDescriptor = errors.New("empty connection descriptor")

// DecodeDescriptor decodes a JSON connection descriptor into dst and checks
// it. Scalars are weakly typed, so "port": 6379 and "port": "6379" are both
// accepted.
func DecodeDescriptor(raw string, dst any) error {
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return fmt.Errorf("failed to parse descriptor: %w", err)
	}
	if values == nil {
		return ErrEmptyDescriptor
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(values); err != nil {
		return fmt.Errorf("failed to decode descriptor: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}
	return nil
}

// environment reads MONET_* variables through viper
type environment struct {
	v *viper.Viper
}

func newEnvironment() *environment {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return &environment{v: v}
}

func (e *environment) lookup(key string) (string, bool) {
	value := e.v.GetString(key)
	return value, value != ""
}
