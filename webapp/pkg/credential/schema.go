package credential

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const loginSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["email", "password"],
	"properties": {
		"email": {
			"type": "string",
			"allOf": [{"minLength": 1}, {"format": "email"}]
		},
		"password": {
			"type": "string",
			"allOf": [{"minLength": 1}, {"minLength": 8}]
		}
	}
}`

const registerSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "email", "password"],
	"properties": {
		"name": {
			"type": "string",
			"allOf": [{"minLength": 1}, {"minLength": 4}]
		},
		"email": {
			"type": "string",
			"allOf": [{"minLength": 1}, {"format": "email"}]
		},
		"password": {
			"type": "string",
			"allOf": [{"minLength": 1}, {"minLength": 8}]
		}
	}
}`

// messages maps a failing keyword location to the text shown next to the
// field.
var messages = map[string]string{
	"/properties/name/allOf/0/minLength":     "Please fill your full name.",
	"/properties/name/allOf/1/minLength":     "Name must be at least 4 characters long.",
	"/properties/email/allOf/0/minLength":    "Please fill your email.",
	"/properties/email/allOf/1/format":       "Invalid email address.",
	"/properties/password/allOf/0/minLength": "Please fill your password.",
	"/properties/password/allOf/1/minLength": "Password must be at least 8 characters long.",
}

var (
	loginValidator    = mustCompile("login.json", loginSchema)
	registerValidator = mustCompile("register.json", registerSchema)
)

func mustCompile(url, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("credential: add schema %s: %v", url, err))
	}
	return compiler.MustCompile(url)
}

// FieldErrors maps a form field to its first validation message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return strings.Join(parts, "; ")
}

func validate(schema *jsonschema.Schema, form interface{}) error {
	data, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("marshal form: %w", err)
	}

	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("unmarshal form: %w", err)
	}

	err = schema.Validate(obj)
	if err == nil {
		return nil
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}

	fe := FieldErrors{}
	locations := map[string]string{}
	collectFieldErrors(fe, locations, ve)
	return fe
}

// collectFieldErrors keeps, per field, the message of the lowest keyword
// location so that "please fill" wins over format errors on empty input.
func collectFieldErrors(fe FieldErrors, locations map[string]string, err *jsonschema.ValidationError) {
	if len(err.Causes) > 0 {
		for _, cause := range err.Causes {
			collectFieldErrors(fe, locations, cause)
		}
		return
	}

	field := strings.TrimPrefix(err.InstanceLocation, "/")
	msg, ok := messages[err.KeywordLocation]
	if !ok {
		msg = err.Message
	}

	if prev, seen := locations[field]; seen && prev <= err.KeywordLocation {
		return
	}
	locations[field] = err.KeywordLocation
	fe[field] = msg
}
