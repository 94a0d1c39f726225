package config

import (
	"encoding/json"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate compiles schema and checks instance against it, aborting the
// process on any violation — config errors are not recoverable at startup.
func Validate(schema string, instance json.RawMessage) {
	sch, err := jsonschema.CompileString("memnode-config.json", schema)
	if err != nil {
		cclog.Fatalf("%#v", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		cclog.Fatal(err)
	}

	if err := sch.Validate(v); err != nil {
		cclog.Fatalf("%#v", err)
	}
}
