// Package registry is a registry for blob.Store factories, letting a store
// stack be described with JSON configuration instead of Go code.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/rljson/fs-agent/blob"
)

// Factory is a function that can create a blob.Store from a configuration
// object.
type Factory = func(context.Context, map[string]interface{}) (blob.Store, error)

var factories = make(map[string]Factory)

// Register registers f as a factory for creating blob stores of the type
// named by key. It is typically called from the init function of a package
// implementing a blob.Store.
func Register(key string, f Factory) {
	factories[key] = f
}

// Create creates a blob.Store of the type indicated by key, using the
// supplied configuration.
func Create(ctx context.Context, key string, conf map[string]interface{}) (blob.Store, error) {
	f, ok := factories[key]
	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// FromConfigFile loads a config file in JSON format from the given filename
// and creates a blob.Store of the type indicated by its "type" key. The
// rest of the JSON object is the config for a store of that type.
func FromConfigFile(ctx context.Context, filename string) (blob.Store, error) {
	var conf map[string]interface{}

	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", filename)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := dec.Decode(&conf); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", filename)
	}

	typ, ok := conf["type"].(string)
	if !ok {
		return nil, fmt.Errorf("config file %s missing `type` parameter", filename)
	}
	return Create(ctx, typ, conf)
}
