package env

import (
	"encoding"
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const (
	TagValue     = "env"
	TagDefault   = "env-default"
	TagSeparator = "env-separator"
	TagPrefix    = "env-prefix"

	defaultSeparator = ","
)

var ErrNotStruct = errors.New("env: target is not a struct")

// ParseError reports a variable whose value could not be converted.
type ParseError struct {
	Name string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse environment variable %s: %v", e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LookupFunc resolves a variable name, like os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// Var describes one variable bound to a struct field.
type Var struct {
	Name     string
	Default  string
	Required bool
	Type     string
}

type parseFunc func(reflect.Value, string) error

var parsers = map[reflect.Type]parseFunc{
	reflect.TypeOf(time.Duration(0)): func(v reflect.Value, s string) error {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	},

	reflect.TypeOf(url.URL{}): func(v reflect.Value, s string) error {
		u, err := url.Parse(s)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(*u))
		return nil
	},
}

// Read fills the tagged fields of the struct root points to from the
// process environment.
func Read(root any) error {
	return ReadWith(root, os.LookupEnv)
}

// ReadWith is Read with a custom variable source. Nested structs are read
// recursively; an env-prefix tag on the struct field is prepended to every
// name inside. A missing variable without a default leaves the field alone.
func ReadWith(root any, lookup LookupFunc) error {
	return walk(root, "", func(f field) error {
		value, found := lookup(f.name)
		if !found {
			if f.required {
				return fmt.Errorf("environment variable %s is required but the value is not provided", f.name)
			}
			if !f.hasDefault {
				return nil
			}
			value = f.def
		}
		if err := setValue(f.value, value, f.sep); err != nil {
			return &ParseError{Name: f.name, Err: err}
		}
		return nil
	})
}

// Describe lists the variables root binds, in field order.
func Describe(root any) ([]Var, error) {
	var vars []Var
	err := walk(root, "", func(f field) error {
		vars = append(vars, Var{
			Name:     f.name,
			Default:  f.def,
			Required: f.required,
			Type:     typeName(f.value.Type()),
		})
		return nil
	})
	return vars, err
}

type field struct {
	name       string
	def        string
	hasDefault bool
	required   bool
	sep        string
	value      reflect.Value
}

func walk(root any, prefix string, visit func(field) error) error {
	rv := reflect.ValueOf(root)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %v", ErrNotStruct, rv.Kind())
	}

	rt := rv.Type()
	for i := range rt.NumField() {
		sf := rt.Field(i)
		fv := rv.Field(i)
		if !sf.IsExported() {
			continue
		}

		if fv.Kind() == reflect.Pointer && sf.Type.Elem().Kind() == reflect.Struct && !hasParser(sf.Type.Elem()) {
			if fv.IsNil() {
				fv.Set(reflect.New(sf.Type.Elem()))
			}
			fv = fv.Elem()
		}
		if fv.Kind() == reflect.Struct && !hasParser(fv.Type()) {
			if err := walk(fv.Addr().Interface(), prefix+sf.Tag.Get(TagPrefix), visit); err != nil {
				return err
			}
			continue
		}

		tag, ok := sf.Tag.Lookup(TagValue)
		if !ok {
			continue
		}
		name, options := parseTag(tag)
		def, hasDefault := sf.Tag.Lookup(TagDefault)
		sep := sf.Tag.Get(TagSeparator)
		if sep == "" {
			sep = defaultSeparator
		}

		err := visit(field{
			name:       prefix + name,
			def:        def,
			hasDefault: hasDefault,
			required:   options.Contains("required"),
			sep:        sep,
			value:      fv,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

var textUnmarshaler = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

func hasParser(t reflect.Type) bool {
	if _, ok := parsers[t]; ok {
		return true
	}
	return reflect.PointerTo(t).Implements(textUnmarshaler)
}

func setValue(v reflect.Value, s, sep string) error {
	t := v.Type()
	if parse, ok := parsers[t]; ok {
		return parse(v, s)
	}
	if v.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(textUnmarshaler) {
		return v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 0, t.Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 0, t.Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return err
		}
		v.SetFloat(n)
	case reflect.Slice:
		return setSlice(v, s, sep)
	case reflect.Map:
		return setMap(v, s, sep)
	case reflect.Pointer:
		if v.IsNil() {
			v.Set(reflect.New(t.Elem()))
		}
		return setValue(v.Elem(), s, sep)
	default:
		return fmt.Errorf("unsupported type %s", v.Kind())
	}
	return nil
}

func setSlice(v reflect.Value, s, sep string) error {
	slice := reflect.MakeSlice(v.Type(), 0, 0)
	if strings.TrimSpace(s) != "" {
		for _, item := range strings.Split(s, sep) {
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := setValue(elem, strings.TrimSpace(item), sep); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
	}
	v.Set(slice)
	return nil
}

func setMap(v reflect.Value, s, sep string) error {
	m := reflect.MakeMap(v.Type())
	if strings.TrimSpace(s) != "" {
		for _, pair := range strings.Split(s, sep) {
			key, value, ok := strings.Cut(pair, ":")
			if !ok {
				return fmt.Errorf("invalid map item %q", pair)
			}
			k := reflect.New(v.Type().Key()).Elem()
			if err := setValue(k, strings.TrimSpace(key), sep); err != nil {
				return err
			}
			e := reflect.New(v.Type().Elem()).Elem()
			if err := setValue(e, strings.TrimSpace(value), sep); err != nil {
				return err
			}
			m.SetMapIndex(k, e)
		}
	}
	v.Set(m)
	return nil
}

func typeName(t reflect.Type) string {
	switch {
	case t == reflect.TypeOf(time.Duration(0)):
		return "duration"
	case t.Kind() == reflect.Slice:
		return "list of " + typeName(t.Elem())
	case t.Kind() == reflect.Map:
		return "map of " + typeName(t.Key()) + " to " + typeName(t.Elem())
	case t.Kind() == reflect.Pointer:
		return typeName(t.Elem())
	case t.Name() != "":
		return strings.ToLower(t.Name())
	default:
		return t.Kind().String()
	}
}

type tagOptions string

func parseTag(tag string) (string, tagOptions) {
	name, opt, _ := strings.Cut(tag, ",")
	return name, tagOptions(opt)
}

func (o tagOptions) Contains(option string) bool {
	for name := range strings.SplitSeq(string(o), ",") {
		if name == option {
			return true
		}
	}
	return false
}
