package variables

import "encoding/json"

// FilesFromOutputs extracts the file references reachable from a
// serialized outputs map: values that are files, plus file items of list
// values, in list order. Output variables are visited in sorted key order
// so projections are deterministic. Malformed payloads yield no files
// rather than an error; discovery is a display-only concern and must
// never break a finish message.
func FilesFromOutputs(outputs json.RawMessage) []*File {
	if len(outputs) == 0 {
		return nil
	}

	var decoded map[string]Value

	err := json.Unmarshal(outputs, &decoded)
	if err != nil {
		return nil
	}

	var files []*File

	for _, key := range sortedKeys(decoded) {
		files = append(files, decoded[key].Files()...)
	}

	return files
}
