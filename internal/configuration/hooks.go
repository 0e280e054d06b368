package configuration

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/smartcampus/daymax/internal/db"
	"github.com/smartcampus/daymax/internal/extremum"
	"github.com/smartcampus/daymax/internal/model"
)

// CustomHooks decodes durations, comma separated lists and the closed sets
// of sensor, strategy, backend and schema names.
var CustomHooks = []viper.DecoderConfigOption{
	viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		NameHookFunc(model.ParseSensor),
		NameHookFunc(extremum.ParseKind),
		NameHookFunc(db.ParseBackend),
		NameHookFunc(db.ParseSchema),
	)),
}

// NameHookFunc decodes a string into T with parse, so that unknown names
// fail while the configuration is read.
func NameHookFunc[T any](parse func(string) (T, error)) mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf((*T)(nil)).Elem()
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != target {
			return data, nil
		}
		return parse(reflect.ValueOf(data).String())
	}
}
