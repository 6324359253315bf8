package effect

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

// bundleSchema validates incoming effect bundles at the boundary, before any
// ledger write. Known effect kinds are closed structs with sane numeric
// ranges (clamping to the documented bounds happens in the applier); the
// #Unknown branch deliberately admits unrecognized type tags so the applier
// can skip them with a warning instead of rejecting the whole bundle.
const bundleSchema = `
#Target: {
	burg?:  int & >=0
	state?: int & >=0
}

#PopulationDelta: {
	type:   "population_delta"
	target: #Target
	delta:  number & >=-1 & <=1
}

#Infrastructure: {
	type:             "infrastructure"
	target:           #Target
	assets_destroyed: [...string]
}

#Economy: {
	type:                   "economy"
	target:                 #Target
	trade_throughput_delta: number & >=-1 & <=1
}

#Migration: {
	type:      "migration"
	target:    #Target
	refugees:  int
	direction: "in" | "out"
}

#Reputation: {
	type:    "reputation"
	target:  #Target
	faction: string & !=""
	delta:   number & >=-100 & <=100
}

#LawEnforcement: {
	type:           "law_enforcement"
	target:         #Target
	status:         string & !=""
	duration_days?: int & >=0
}

#QuestOp: {
	op:                string & !=""
	chain_id?:         string
	hook_template_id?: string
	burg_id?:          int & >=0
	rationale?:        string
}

#QuestGraph: {
	type:    "quest_graph"
	target?: #Target
	ops:     [...#QuestOp]
}

// Compatibility shim: unknown tags pass shape validation and are skipped,
// with a warning, by the applier. The exclusions keep malformed known kinds
// from slipping through this branch.
#Unknown: {
	type: string & !="population_delta" & !="infrastructure" & !="economy" &
		!="migration" & !="reputation" & !="law_enforcement" & !="quest_graph"
	...
}

#Effect: #PopulationDelta | #Infrastructure | #Economy | #Migration |
	#Reputation | #LawEnforcement | #QuestGraph | #Unknown

#Bundle: {
	action_id:     string & !=""
	effects:       [...#Effect]
	generated_at?: string
}
`

var (
	schemaOnce sync.Once
	schemaVal  cue.Value
	schemaErr  error
)

func compiledBundleSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		cctx := cuecontext.New()
		root := cctx.CompileString(bundleSchema)
		if err := root.Err(); err != nil {
			schemaErr = fmt.Errorf("compile bundle schema: %w", err)
			return
		}
		schemaVal = root.LookupPath(cue.ParsePath("#Bundle"))
		if err := schemaVal.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Bundle: %w", err)
		}
	})
	return schemaVal, schemaErr
}

// ValidationError reports a bundle that failed boundary validation.
// Validation errors are non-retryable and surfaced in-band to the caller.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "effect bundle validation failed: " + e.Detail
}

// ValidateBundle checks raw bundle JSON against the boundary schema.
func ValidateBundle(data []byte) error {
	schema, err := compiledBundleSchema()
	if err != nil {
		return err
	}

	expr, err := cuejson.Extract("bundle.json", data)
	if err != nil {
		return &ValidationError{Detail: err.Error()}
	}

	val := schema.Context().BuildExpr(expr)
	if err := val.Err(); err != nil {
		return &ValidationError{Detail: err.Error()}
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Detail: cueerrors.Details(err, nil)}
	}
	return nil
}
