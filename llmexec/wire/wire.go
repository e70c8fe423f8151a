// Package wire implements the opaque-JSON merge the executor's request
// body needs: composing Body ∪ {messages, tools?, stream, temperature}.
// Using sjson/gjson keeps a caller's custom request body as opaque JSON
// instead of unmarshaling it into a Go struct first.
package wire

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MergeFields patches body with the fields the runtime must contribute to
// any LLM call. tools may be nil, in which case the key is omitted rather
// than written as null.
func MergeFields(body []byte, messages any, tools any, stream bool, temperature float32) ([]byte, error) {
	out := body
	if len(out) == 0 {
		out = []byte("{}")
	}
	var err error
	out, err = sjson.SetBytes(out, "messages", messages)
	if err != nil {
		return nil, err
	}
	if tools != nil {
		out, err = sjson.SetBytes(out, "tools", tools)
		if err != nil {
			return nil, err
		}
	}
	out, err = sjson.SetBytes(out, "stream", stream)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "temperature", temperature)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get reads a single field out of a wire document without unmarshaling the
// whole thing, used to read back state the executor recorded under the
// core.llm.* global-state keys.
func Get(doc []byte, path string) gjson.Result {
	return gjson.GetBytes(doc, path)
}

// UnmarshalInto decodes a merged wire document into a concrete request
// struct once a transport needs a typed Go value to send.
func UnmarshalInto(doc []byte, v any) error {
	return json.Unmarshal(doc, v)
}
