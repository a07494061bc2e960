package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	internalschema "fabrik/internal/schema"
)

// Decode reads, schema-validates, and semantically validates a JSON
// pipeline definition.
func Decode(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pipeline definition: %w", err)
	}
	return DecodeBytes(data)
}

func DecodeBytes(data []byte) (*Definition, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var object map[string]any
	if err := decoder.Decode(&object); err != nil {
		return nil, fmt.Errorf("invalid pipeline JSON: %w", err)
	}
	return decodeObject(object)
}

// DecodeYAML accepts the same document authored as YAML.
func DecodeYAML(data []byte) (*Definition, error) {
	var object map[string]any
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&object); err != nil {
		return nil, fmt.Errorf("invalid pipeline YAML: %w", err)
	}
	return decodeObject(object)
}

func decodeObject(object map[string]any) (*Definition, error) {
	s, err := internalschema.Resolve(SchemaPipeline)
	if err != nil {
		return nil, err
	}
	if err := internalschema.ValidateObject(s, object); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(object)
	if err != nil {
		return nil, err
	}
	dtoDecoder := json.NewDecoder(bytes.NewReader(payload))
	dtoDecoder.UseNumber()
	var definition Definition
	if err := dtoDecoder.Decode(&definition); err != nil {
		return nil, &ValidationError{Kind: ValidationBadRequest, Message: fmt.Sprintf("malformed pipeline definition: %v", err)}
	}
	definition.normalize()
	if err := Validate(&definition); err != nil {
		return &definition, err
	}
	return &definition, nil
}

// Encode writes the definition as indented JSON in the document's field
// order. Decoding a document and encoding it again reproduces the input.
func Encode(w io.Writer, d *Definition) error {
	if d == nil {
		return fmt.Errorf("nil pipeline definition")
	}
	d.normalize()
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(d)
}

func EncodeBytes(d *Definition) ([]byte, error) {
	var out bytes.Buffer
	if err := Encode(&out, d); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
