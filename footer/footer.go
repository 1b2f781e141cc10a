// Package footer encodes and decodes the self-describing metadata block written at
// the end of every tracefile.
//
// A footer is a YAML mapping. Its schema_version key grows monotonically; each
// version only adds keys. Decoding walks an ordered ladder of upgrade steps, one per
// version, from the stored version down to 0. Each step fills the fields its version
// introduced. Fields from versions newer than the stored one get defaults, so a
// single decoder reads every historical file:
//
//	stored v1:  step1 (activity) → step0 (base) → defaults for v2, v3, v4
//	stored v4:  step4 → step3 → step2 → step1 → step0
//
// Versions newer than the reader understands are rejected with
// errs.ErrUnknownSchemaVersion.
package footer

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/tracefile/errs"
)

const (
	keySchemaVersion = "schema_version"
	keyType          = "type"
)

// Type tags.
const (
	TypeRecords  = "records"
	TypeChannels = "channels"
)

// rawBlock is the undecoded key/value content of a footer.
type rawBlock map[string]*yaml.Node

func parseRaw(data []byte) (rawBlock, int, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", errs.ErrMalformedFooter, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, 0, fmt.Errorf("%w: footer is not a key/value mapping", errs.ErrMalformedFooter)
	}

	mapping := doc.Content[0]
	raw := make(rawBlock, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		raw[mapping.Content[i].Value] = mapping.Content[i+1]
	}

	versionNode, ok := raw[keySchemaVersion]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", errs.ErrMissingFooterKey, keySchemaVersion)
	}
	version, err := strconv.Atoi(versionNode.Value)
	if err != nil || version < 0 {
		return nil, 0, fmt.Errorf("%w: schema_version %q", errs.ErrMalformedFooter, versionNode.Value)
	}

	return raw, version, nil
}

// decode decodes key into out, failing when the key is absent.
func (r rawBlock) decode(key string, out any) error {
	node, ok := r[key]
	if !ok {
		return fmt.Errorf("%w: %s", errs.ErrMissingFooterKey, key)
	}
	if err := node.Decode(out); err != nil {
		return fmt.Errorf("%w: key %s: %w", errs.ErrMalformedFooter, key, err)
	}

	return nil
}

func (r rawBlock) checkType(expected string) error {
	var tag string
	if err := r.decode(keyType, &tag); err != nil {
		return err
	}
	if tag != expected {
		return fmt.Errorf("%w: got %q, want %q", errs.ErrTypeTagMismatch, tag, expected)
	}

	return nil
}

// mapping builds an ordered YAML mapping.
type mapping struct {
	node yaml.Node
}

func newMapping() *mapping {
	return &mapping{node: yaml.Node{Kind: yaml.MappingNode}}
}

func (m *mapping) put(key string, value any) error {
	var v yaml.Node
	if err := v.Encode(value); err != nil {
		return fmt.Errorf("footer: encode %s: %w", key, err)
	}
	m.node.Content = append(m.node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &v)

	return nil
}

func (m *mapping) marshal() ([]byte, error) {
	return yaml.Marshal(&m.node)
}

func checkLen(key string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %s has %d entries, expected %d", errs.ErrMalformedFooter, key, got, want)
	}

	return nil
}
