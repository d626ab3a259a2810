package link

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"github.com/bledrive/bledrive/config"
	"github.com/bledrive/bledrive/logging"
	"github.com/bledrive/bledrive/utils"
)

// A TransportConstructor builds a Transport from a link config. conf.ConvertedAttributes holds
// the result of the registration's AttributeMapConverter, if any.
type TransportConstructor func(ctx context.Context, conf config.Link, logger logging.Logger) (Transport, error)

// An AttributeMapConverter turns the raw attributes of a link config into a typed value.
type AttributeMapConverter func(attributes config.AttributeMap) (interface{}, error)

// TransportRegistration describes how to build a named transport.
type TransportRegistration struct {
	Constructor           TransportConstructor
	AttributeMapConverter AttributeMapConverter
}

var (
	registryMu sync.RWMutex
	registry   = map[string]TransportRegistration{}
)

// RegisterTransport registers a transport under name. It panics if the name is already taken
// or the registration has no constructor.
func RegisterTransport(name string, reg TransportRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, old := registry[name]; old {
		panic(errors.Errorf("trying to register two transports with same name %q", name))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for transport %q", name))
	}
	registry[name] = reg
}

// LookupTransport returns the registration for name, if any.
func LookupTransport(name string) (TransportRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[name]
	return reg, ok
}

// RegisteredTransports returns the sorted names of all registered transports.
func RegisteredTransports() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type pathValidator interface {
	Validate(path string) error
}

// NewTransport builds the transport named by conf.Type, converting and validating its
// attributes first.
func NewTransport(ctx context.Context, conf config.Link, logger logging.Logger) (Transport, error) {
	reg, ok := LookupTransport(conf.Type)
	if !ok {
		return nil, errors.Errorf("unknown link type %q (registered: %v)", conf.Type, RegisteredTransports())
	}
	if reg.AttributeMapConverter != nil {
		converted, err := reg.AttributeMapConverter(conf.Attributes)
		if err != nil {
			return nil, errors.Wrapf(err, "error converting attributes for link type %q", conf.Type)
		}
		if v, ok := converted.(pathValidator); ok {
			if err := v.Validate("link.attributes"); err != nil {
				return nil, err
			}
		}
		conf.ConvertedAttributes = converted
	}
	return reg.Constructor(ctx, conf, logger.Named(conf.Type))
}

// TransformAttributeMap decodes attributes into a new T using its json tags. Durations may be
// given as strings such as "5s". Unknown keys are an error.
func TransformAttributeMap[T any](attributes config.AttributeMap) (T, error) {
	var out T

	var forResult interface{}
	toT := reflect.TypeOf(out)
	if toT == nil {
		return out, nil
	}
	if toT.Kind() == reflect.Ptr {
		// needs to be allocated then
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, errors.Errorf("failed to allocate config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           forResult,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, err
	}
	return out, nil
}

// AttributeConverter returns an AttributeMapConverter that decodes into a *T.
func AttributeConverter[T any]() AttributeMapConverter {
	return func(attributes config.AttributeMap) (interface{}, error) {
		return TransformAttributeMap[*T](attributes)
	}
}

// ConvertedAttributes returns conf.ConvertedAttributes as a *T.
func ConvertedAttributes[T any](conf config.Link) (*T, error) {
	switch attrs := conf.ConvertedAttributes.(type) {
	case *T:
		return attrs, nil
	case nil:
		return new(T), nil
	default:
		return nil, utils.NewUnexpectedTypeError(new(T), conf.ConvertedAttributes)
	}
}
