package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands {{.VAR}} template references in YAML content against
// the current process environment before it is parsed, the way the
// configuration loader prepares server config for unmarshalling (atlas
// bundles use os.ExpandEnv instead). Missing variables expand to the empty string.
// Malformed template syntax is passed through unchanged byte-for-byte so the
// YAML parser (or a later validation pass) can surface a clearer error
// instead of this step silently swallowing one.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, environMap()); err != nil {
		return data
	}
	return buf.Bytes()
}

func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}
