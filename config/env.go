package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// A Lookup finds the value of a variable.
type Lookup func(key string) (string, bool)

// Environment looks variables up in the process environment.
func Environment() Lookup {
	return os.LookupEnv
}

// DotEnv looks variables up in a .env style file without changing the
// process environment. A missing file has no variables.
func DotEnv(path string) (Lookup, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		values = map[string]string{}
	} else if err != nil {
		return nil, err
	}

	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok && v != ""
	}, nil
}

// Chain tries each lookup in order.
func Chain(lookups ...Lookup) Lookup {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if v, ok := l(key); ok && v != "" {
				return v, true
			}
		}

		return "", false
	}
}
