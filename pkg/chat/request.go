// Package chat decodes and re-encodes the messages of a chat-completion
// request body without touching any other byte of the document.
package chat

import (
	"bytes"
	"fmt"

	"github.com/kiriru/mistral-relay/pkg/normalizer"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const messagesPath = "messages"

// Request is a decoded chat-completion body. Body is kept as received so that
// Replace can rewrite the messages array in place.
type Request struct {
	Body  []byte
	Model string
	Turns []normalizer.Turn
}

// Model returns the declared model name, or "" when the body is not JSON or the
// field is absent or not a string.
func Model(body []byte) string {
	res := gjson.GetBytes(body, "model")
	if res.Type != gjson.String {
		return ""
	}
	return res.Str
}

// ParseRequest decodes body and validates every message. The returned turns
// carry the raw JSON object of their message.
func ParseRequest(body []byte) (*Request, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidJSON
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, ErrInvalidJSON
	}
	msgs := doc.Get(messagesPath)
	if !msgs.Exists() {
		return nil, ErrMissingMessages
	}
	if !msgs.IsArray() {
		return nil, ErrMessagesNotArray
	}
	items := msgs.Array()
	turns := make([]normalizer.Turn, 0, len(items))
	for i, item := range items {
		t, err := decodeTurn(i, item)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return &Request{
		Body:  body,
		Model: Model(body),
		Turns: turns,
	}, nil
}

func decodeTurn(i int, item gjson.Result) (normalizer.Turn, error) {
	if !item.IsObject() {
		return normalizer.Turn{}, &TurnError{Index: i, Err: fmt.Errorf("%w: not an object", ErrInvalidTurn)}
	}
	role := item.Get("role")
	if role.Type != gjson.String {
		return normalizer.Turn{}, &TurnError{Index: i, Field: "role", Err: fmt.Errorf("%w: missing or not a string", ErrInvalidTurn)}
	}
	r, err := normalizer.ParseRole(role.Str)
	if err != nil {
		return normalizer.Turn{}, &TurnError{Index: i, Field: "role", Err: fmt.Errorf("%w: %w", ErrInvalidTurn, err)}
	}
	content := item.Get("content")
	if content.Type != gjson.String {
		return normalizer.Turn{}, &TurnError{Index: i, Field: "content", Err: fmt.Errorf("%w: missing or not a string", ErrInvalidTurn)}
	}
	return normalizer.Turn{
		Role:    r,
		Content: content.Str,
		Raw:     []byte(item.Raw),
	}, nil
}

// Replace returns a copy of the body whose messages array is turns. Every other
// top-level key keeps its position and bytes.
func (r *Request) Replace(turns []normalizer.Turn) ([]byte, error) {
	var arr bytes.Buffer
	arr.WriteByte('[')
	for i := range turns {
		enc, err := EncodeTurn(turns[i])
		if err != nil {
			return nil, fmt.Errorf("encoding message %d: %w", i, err)
		}
		if i > 0 {
			arr.WriteByte(',')
		}
		arr.Write(enc)
	}
	arr.WriteByte(']')
	body := bytes.Clone(r.Body)
	out, err := sjson.SetRawBytes(body, messagesPath, arr.Bytes())
	if err != nil {
		return nil, fmt.Errorf("replacing messages: %w", err)
	}
	return out, nil
}

// EncodeTurn renders a turn as a JSON object. A turn decoded from Raw keeps
// Raw's bytes and only the fields that changed are rewritten, so untouched
// turns are forwarded exactly as received. Synthetic turns become a plain
// {"role":...,"content":...} object.
func EncodeTurn(t normalizer.Turn) ([]byte, error) {
	if len(t.Raw) == 0 {
		out, err := sjson.SetBytes([]byte(`{}`), "role", t.Role.String())
		if err != nil {
			return nil, err
		}
		return sjson.SetBytes(out, "content", t.Content)
	}
	out := bytes.Clone(t.Raw)
	var err error
	if role := gjson.GetBytes(out, "role"); role.Type != gjson.String || role.Str != t.Role.String() {
		if out, err = sjson.SetBytes(out, "role", t.Role.String()); err != nil {
			return nil, err
		}
	}
	if content := gjson.GetBytes(out, "content"); content.Type != gjson.String || content.Str != t.Content {
		if out, err = sjson.SetBytes(out, "content", t.Content); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Rewrite parses body, normalizes its conversation and substitutes the
// result. When the conversation already conforms the body is returned as is.
func Rewrite(body []byte) ([]byte, normalizer.Stats, error) {
	req, err := ParseRequest(body)
	if err != nil {
		return nil, normalizer.Stats{}, err
	}
	turns, stats := normalizer.NormalizeWithStats(req.Turns)
	if !stats.Changed() {
		return body, stats, nil
	}
	out, err := req.Replace(turns)
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}
