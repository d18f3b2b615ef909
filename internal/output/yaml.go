package output

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

func RenderYAML(v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render dispatches on the output format name.
func Render(format string, v any, pretty func() string) (string, error) {
	switch format {
	case "json":
		return RenderJSON(v)
	case "yaml":
		return RenderYAML(v)
	default:
		return pretty(), nil
	}
}
