package indexfile

import (
	"embed"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed index.schema.json
var schemaFS embed.FS

// indexSchema compiles the embedded envelope schema once. The schema ships
// with the binary, so a compile failure is a programming error.
var indexSchema = sync.OnceValue(func() *gojsonschema.Schema {
	data, err := schemaFS.ReadFile("index.schema.json")
	if err != nil {
		panic("indexfile: read embedded schema: " + err.Error())
	}

	schema, compileErr := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if compileErr != nil {
		panic("indexfile: compile embedded schema: " + compileErr.Error())
	}

	return schema
})

// validEnvelope reports whether raw is a structurally valid index envelope.
// Schema violations are not distinguished from other malformations; both
// degrade to "no index found".
func validEnvelope(raw []byte) bool {
	result, err := indexSchema().Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return false
	}

	return result.Valid()
}
