package llm

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// decodeObject parses the first JSON object in model output.  Markdown code
// fences and prose around the object are tolerated.
func decodeObject(text string, dst interface{}) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return errors.New(errors.ErrCodeLLMMalformedJSON, "no JSON object in model output").
			WithDetail(truncate(text, 200))
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), dst); err != nil {
		return errors.Wrap(err, errors.ErrCodeLLMMalformedJSON, "malformed JSON in model output").
			WithDetail(truncate(text, 200))
	}
	return nil
}

// scalarString renders a JSON scalar as a field value.  null, objects and
// arrays yield ok=false.
func scalarString(raw json.RawMessage) (string, bool) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		if t == "" || strings.EqualFold(t, "null") || t == "None" {
			return "", false
		}
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
