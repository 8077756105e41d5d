package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ppiankov/nanoreport/internal/settings"
)

// addSettingFlags declares one --report-<plugin>-<field> flag per setting
func addSettingFlags(fs *pflag.FlagSet, plugin string, schema *settings.Schema) {
	for _, f := range schema.Fields() {
		name := settings.FlagName(plugin, f.Name)
		help := f.Help
		if f.EnvVar {
			help += fmt.Sprintf(" (env %s)", settings.EnvName(plugin, f.Name))
		}
		if f.Required {
			help += " (required)"
		}

		switch def := f.Default.(type) {
		case bool:
			fs.Bool(name, def, help)
		case []string:
			fs.StringSlice(name, def, help)
		default:
			if f.Nargs == "+" {
				fs.StringSlice(name, nil, help)
				continue
			}
			if f.Default != nil {
				help += fmt.Sprintf(" (default %v)", f.Default)
			}
			fs.String(name, "", help)
		}
	}
}

// settingSource reads raw setting values from outside the flag set
type settingSource struct {
	lookupEnv func(string) (string, bool)
	config    *viper.Viper
}

func defaultSettingSource() settingSource {
	return settingSource{lookupEnv: os.LookupEnv, config: viper.GetViper()}
}

// collectSettings resolves every setting of a plugin. Precedence is flag,
// then environment variable for EnvVar fields, then the report.<plugin>
// section of the config file, then the field default.
func collectSettings(fs *pflag.FlagSet, plugin string, schema *settings.Schema, src settingSource) (settings.Values, error) {
	values := settings.Defaults(schema)

	for _, f := range schema.Fields() {
		raw, ok, err := rawSetting(fs, plugin, f, src)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		v, err := settings.ParseValue(f, raw)
		if err != nil {
			return nil, err
		}
		values[f.Name] = v
	}
	return values, nil
}

func rawSetting(fs *pflag.FlagSet, plugin string, f settings.Field, src settingSource) (string, bool, error) {
	name := settings.FlagName(plugin, f.Name)
	if flag := fs.Lookup(name); flag != nil && flag.Changed {
		if sv, ok := flag.Value.(pflag.SliceValue); ok {
			return strings.Join(sv.GetSlice(), ","), true, nil
		}
		return flag.Value.String(), true, nil
	}

	if f.EnvVar && src.lookupEnv != nil {
		if raw, ok := src.lookupEnv(settings.EnvName(plugin, f.Name)); ok {
			return raw, true, nil
		}
	}

	if src.config != nil {
		key := "report." + plugin + "." + f.Name
		if src.config.IsSet(key) {
			switch v := src.config.Get(key).(type) {
			case []any:
				parts := make([]string, len(v))
				for i, p := range v {
					parts[i] = fmt.Sprint(p)
				}
				return strings.Join(parts, ","), true, nil
			default:
				return fmt.Sprint(v), true, nil
			}
		}
	}
	return "", false, nil
}
