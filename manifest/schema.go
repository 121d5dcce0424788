package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// schema constrains squirrel.toml. Unknown sections and keys are rejected.
const schema = `
#Module: "base" | "string" | "math" | "io" | "blob" | "system"

#Dependency: {
	git?:  string
	tag?:  string
	path?: string
	name?: =~"^[A-Za-z_][A-Za-z0-9_]*$"
}

#Config: {
	project?: {
		name?:    string
		version?: string
		entry?:   string
		paths?: [...string]
	}
	vm?: {
		"heap-limit"?:     int & >=0
		"stack-size"?:     int & >=0 & <=16777216
		"max-call-depth"?: int & >=0 & <=100000
		"check-interval"?: int & >=0
		"gc-threshold"?:   int & >=0
	}
	stdlib?: modules?: [...#Module]
	cache?: {
		enabled?: bool
		path?:    string
	}
	log?: {
		verbosity?: int & >=-4 & <=5
		file?:      string
	}
	server?: address?: string
	dependencies?: [string]: #Dependency
}
`

// Validate checks decoded manifest data against the schema.
func Validate(data map[string]interface{}) error {
	ctx := cuecontext.New()
	root := ctx.CompileString(schema)
	if err := root.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	def := root.LookupPath(cue.ParsePath("#Config"))

	val := ctx.Encode(data)
	if err := val.Err(); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %s", errors.Details(err, nil))
	}
	return nil
}
