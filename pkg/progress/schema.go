package progress

import (
	"embed"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed progress.schema.json
var schemaFS embed.FS

// progressSchema compiles the embedded envelope schema once.
var progressSchema = sync.OnceValue(func() *gojsonschema.Schema {
	data, err := schemaFS.ReadFile("progress.schema.json")
	if err != nil {
		panic("progress: read embedded schema: " + err.Error())
	}

	schema, compileErr := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if compileErr != nil {
		panic("progress: compile embedded schema: " + compileErr.Error())
	}

	return schema
})

// validEnvelope reports whether raw is a structurally valid progress
// envelope. Any malformation degrades to "no progress found".
func validEnvelope(raw []byte) bool {
	result, err := progressSchema().Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return false
	}

	return result.Valid()
}
