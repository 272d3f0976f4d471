package generative

import "google.golang.org/genai"

func object(required []string, props map[string]*genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func arrayOf(items *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: items}
}

var (
	stringField  = &genai.Schema{Type: genai.TypeString}
	integerField = &genai.Schema{Type: genai.TypeInteger}
)

var versesSchema = arrayOf(object([]string{"number", "text"}, map[string]*genai.Schema{
	"number": integerField,
	"text":   stringField,
}))

var paragraphsSchema = arrayOf(object([]string{"number", "text"}, map[string]*genai.Schema{
	"number":  integerField,
	"text":    stringField,
	"section": stringField,
}))

var documentsSchema = arrayOf(object([]string{"title", "summary"}, map[string]*genai.Schema{
	"title":   stringField,
	"author":  stringField,
	"year":    integerField,
	"summary": stringField,
	"body":    stringField,
}))

var stepSchema = object([]string{"title", "kind"}, map[string]*genai.Schema{
	"title":     stringField,
	"kind":      {Type: genai.TypeString, Enum: []string{"reading", "paragraphs", "document", "reflection"}},
	"reference": stringField,
	"body":      stringField,
})

var trackSchema = object([]string{"title", "modules"}, map[string]*genai.Schema{
	"title":       stringField,
	"description": stringField,
	"modules": arrayOf(object([]string{"title", "steps"}, map[string]*genai.Schema{
		"title": stringField,
		"steps": arrayOf(stepSchema),
	})),
})
