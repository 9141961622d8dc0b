package qljsconfig

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// DefaultParseConfig is a minimal ParseConfig implementation good enough
// to exercise the loader end to end: it extracts the "globals" object as a
// set of booleans (quick-lint-js.config's most common option) and keeps
// the raw bytes around for anything else a caller wants out of the file.
// Callers needing the linter's full option surface supply their own
// ParseConfig via Options instead.
func DefaultParseConfig(contents []byte) (Configuration, error) {
	if !gjson.ValidBytes(contents) {
		return Configuration{}, fmt.Errorf("invalid json")
	}

	root := gjson.ParseBytes(contents)
	globals := make(map[string]bool)
	root.Get("globals").ForEach(func(key, value gjson.Result) bool {
		globals[key.String()] = value.Bool()
		return true
	})

	return Configuration{
		Globals: globals,
		Raw:     contents,
	}, nil
}
