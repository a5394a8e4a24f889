// Package configvar binds a setting to a command-line flag, an environment
// variable and a default, resolved in that order through viper.
package configvar

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Var[T string | int | int64 | bool | time.Duration] struct {
	EnvKey       string
	FlagKey      string
	DefaultValue T
	Usage        string
}

// Register defines the flag on fs and binds the env key and default in v.
func (c Var[T]) Register(fs *pflag.FlagSet, v *viper.Viper) {
	switch d := any(c.DefaultValue).(type) {
	case string:
		fs.String(c.FlagKey, d, c.Usage)
	case int:
		fs.Int(c.FlagKey, d, c.Usage)
	case int64:
		fs.Int64(c.FlagKey, d, c.Usage)
	case bool:
		fs.Bool(c.FlagKey, d, c.Usage)
	case time.Duration:
		fs.Duration(c.FlagKey, d, c.Usage)
	default:
		panic(fmt.Sprintf("configvar: unsupported type %T", d))
	}

	v.BindEnv(c.FlagKey, c.EnvKey)
	v.SetDefault(c.FlagKey, c.DefaultValue)
}

// Get reads the resolved value from v.
func (c Var[T]) Get(v *viper.Viper) T {
	var value any
	switch any(c.DefaultValue).(type) {
	case string:
		value = v.GetString(c.FlagKey)
	case int:
		value = v.GetInt(c.FlagKey)
	case int64:
		value = v.GetInt64(c.FlagKey)
	case bool:
		value = v.GetBool(c.FlagKey)
	case time.Duration:
		value = v.GetDuration(c.FlagKey)
	}

	return value.(T)
}

// Load parses args into fs and binds the parsed flags to v.
func Load(fs *pflag.FlagSet, v *viper.Viper, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}

	return v.BindPFlags(fs)
}
