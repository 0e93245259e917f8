package state

import "github.com/disconnec/FeiSync/internal/apierr"

func stringField(fields map[string]any, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", apierr.New(apierr.BadInput, "field "+name+" must be a string")
	}
	return s, nil
}

func boolField(fields map[string]any, name string, def bool) bool {
	v, ok := fields[name]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func int64Field(fields map[string]any, name string) int64 {
	v, ok := fields[name]
	if !ok {
		return 0
	}
	f, ok := v.(float64) // encoding/json decodes numbers as float64
	if !ok {
		return 0
	}
	return int64(f)
}

func stringSliceField(fields map[string]any, name string) []string {
	v, ok := fields[name]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
