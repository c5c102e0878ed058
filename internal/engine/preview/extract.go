package preview

import (
	"strconv"
	"strings"

	"hookrelay/internal/platform/models"
)

const (
	RootHeaders     = "headers"
	RootBody        = "body"
	RootQueryParams = "queryParams"
)

// Source holds the three namespaces a preview field can address. A nil Body
// means the capture had no body or it was not JSON.
type Source struct {
	Headers     *Object
	Body        Value
	QueryParams *Object
}

// FromRequest parses the stored fields of a capture. Unparsable headers or
// query parameters become empty objects.
func FromRequest(req *models.WebhookRequest) Source {
	src := Source{
		Headers:     parseObject(req.Headers),
		QueryParams: parseObject(req.QueryParams),
	}
	if req.Body != nil && *req.Body != "" {
		if v, err := Parse([]byte(*req.Body)); err == nil {
			src.Body = v
		}
	}
	return src
}

func parseObject(s string) *Object {
	v, err := Parse([]byte(s))
	if err != nil {
		return NewObject()
	}
	if obj, ok := v.(*Object); ok {
		return obj
	}
	return NewObject()
}

// Extract evaluates fields against src. fields is one dotted field such as
// "headers.x-event-type" or "body.data.id", or several separated by commas.
// Found values are joined with newlines; missing ones are skipped. The bool is
// false when nothing was found.
func Extract(src Source, fields string) (string, bool) {
	var found []string
	for _, field := range strings.Split(fields, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if v, ok := extractField(src, field); ok {
			found = append(found, v)
		}
	}
	if len(found) == 0 {
		return "", false
	}
	return strings.Join(found, "\n"), true
}

func extractField(src Source, field string) (string, bool) {
	segments := strings.Split(field, ".")
	root, rest := segments[0], segments[1:]
	if len(rest) == 0 {
		return "", false
	}

	var v Value
	switch root {
	case RootHeaders:
		if src.Headers == nil {
			return "", false
		}
		// header names may contain dots, so the remainder is a single key
		got, ok := src.Headers.GetFold(strings.Join(rest, "."))
		if !ok {
			return "", false
		}
		v = got
	case RootQueryParams:
		if src.QueryParams == nil {
			return "", false
		}
		got, ok := src.QueryParams.Get(strings.Join(rest, "."))
		if !ok {
			return "", false
		}
		v = got
	case RootBody:
		got, ok := walk(src.Body, rest)
		if !ok {
			return "", false
		}
		v = got
	default:
		return "", false
	}

	return present(v)
}

func walk(v Value, segments []string) (Value, bool) {
	for _, seg := range segments {
		switch t := v.(type) {
		case *Object:
			next, ok := t.Get(seg)
			if !ok {
				return nil, false
			}
			v = next
		case Array:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(t) {
				return nil, false
			}
			v = t[i]
		default:
			return nil, false
		}
	}
	return v, v != nil
}

// present renders v, treating null and the empty string as missing.
func present(v Value) (string, bool) {
	switch t := v.(type) {
	case nil, Null:
		return "", false
	case String:
		if t == "" {
			return "", false
		}
	}
	return Render(v), true
}
