package hook

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

// templateSchema vets authored hook template documents. Templates come from
// campaign authors, not the engine, so they get the same boundary treatment
// as effect bundles.
const templateSchema = `
#Template: {
	hook_template_id: string & !=""
	chain_id?:        string & !=""
	title?:           string
	summary?:         string
	...
}
`

var (
	tplSchemaOnce sync.Once
	tplSchemaVal  cue.Value
	tplSchemaErr  error
)

func compiledTemplateSchema() (cue.Value, error) {
	tplSchemaOnce.Do(func() {
		cctx := cuecontext.New()
		root := cctx.CompileString(templateSchema)
		if err := root.Err(); err != nil {
			tplSchemaErr = fmt.Errorf("compile template schema: %w", err)
			return
		}
		tplSchemaVal = root.LookupPath(cue.ParsePath("#Template"))
		if err := tplSchemaVal.Err(); err != nil {
			tplSchemaErr = fmt.Errorf("lookup #Template: %w", err)
		}
	})
	return tplSchemaVal, tplSchemaErr
}

// ValidateTemplate checks raw template JSON against the boundary schema.
func ValidateTemplate(data []byte) error {
	schema, err := compiledTemplateSchema()
	if err != nil {
		return err
	}

	expr, err := cuejson.Extract("template.json", data)
	if err != nil {
		return fmt.Errorf("template validation: %w", err)
	}
	val := schema.Context().BuildExpr(expr)
	if err := val.Err(); err != nil {
		return fmt.Errorf("template validation: %w", err)
	}
	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("template validation: %s", cueerrors.Details(err, nil))
	}
	return nil
}
