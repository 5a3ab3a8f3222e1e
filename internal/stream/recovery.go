package stream

import (
	"encoding/json"
	"regexp"
	"strings"

	"plaichat/internal/models"
)

// Strategy is one named attempt at turning a tool_call body into a ToolCall.
type Strategy struct {
	Name string
	Fn   func(body string) (models.ToolCall, bool)
}

// Ladder is tried in order and the first success wins.
var Ladder = []Strategy{
	{Name: "strict", Fn: decodeStrict},
	{Name: "rebuild", Fn: decodeRebuild},
	{Name: "simple-args", Fn: decodeSimpleArgs},
	{Name: "requote", Fn: decodeRequote},
	{Name: "identity-only", Fn: decodeIdentityOnly},
}

var (
	idRe   = regexp.MustCompile(`"id"\s*:\s*"([^"]*)"`)
	nameRe = regexp.MustCompile(`"name"\s*:\s*"([^"]*)"`)
	typeRe = regexp.MustCompile(`"type"\s*:\s*"([^"]*)"`)

	// Arguments run to the last brace before the closing brace of the call.
	fullArgsRe   = regexp.MustCompile(`"arguments"\s*:\s*(\{.*\})\s*\}$`)
	simpleArgsRe = regexp.MustCompile(`"arguments"\s*:\s*(\{[^}]*\})`)
	danglingRe   = regexp.MustCompile(`'\s*\}`)
	quotedAttrRe = regexp.MustCompile(`=("([^"]*)")`)

	idStrictRe   = regexp.MustCompile(`"id"\s*:\s*"([^"]+)"`)
	nameStrictRe = regexp.MustCompile(`"name"\s*:\s*"([^"]+)"`)
	typeStrictRe = regexp.MustCompile(`"type"\s*:\s*"([^"]+)"`)
)

// Recover runs the ladder and reports which strategy produced the call.
func Recover(body string) (models.ToolCall, string, bool) {
	for _, s := range Ladder {
		if call, ok := s.Fn(body); ok {
			return call, s.Name, true
		}
	}
	return models.ToolCall{}, "", false
}

func decodeStrict(body string) (models.ToolCall, bool) {
	var call models.ToolCall
	if !strings.HasPrefix(strings.TrimSpace(body), "{") {
		return call, false
	}
	if err := json.Unmarshal([]byte(body), &call); err != nil {
		return models.ToolCall{}, false
	}
	return call, true
}

type identity struct {
	id, name, typ string
}

func matchIdentity(body string, id, name, typ *regexp.Regexp) (identity, bool) {
	idm := id.FindStringSubmatch(body)
	namem := name.FindStringSubmatch(body)
	typem := typ.FindStringSubmatch(body)
	if idm == nil || namem == nil || typem == nil {
		return identity{}, false
	}
	return identity{id: idm[1], name: namem[1], typ: typem[1]}, true
}

func (i identity) call(args map[string]any) models.ToolCall {
	return models.ToolCall{ID: i.id, Name: i.name, Type: models.ToolCallType(i.typ), Arguments: args}
}

func decodeRebuild(body string) (models.ToolCall, bool) {
	ident, ok := matchIdentity(body, idRe, nameRe, typeRe)
	if !ok {
		return models.ToolCall{}, false
	}
	m := fullArgsRe.FindStringSubmatch(body)
	if m == nil {
		return models.ToolCall{}, false
	}
	args := m[1]
	if !strings.HasSuffix(args, "}") {
		args += "}"
	}
	if loc := danglingRe.FindStringIndex(args); loc != nil {
		args = args[:loc[0]] + args[loc[0]+1:]
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		return models.ToolCall{}, false
	}
	return ident.call(parsed), true
}

// decodeSimpleArgs only applies when the full arguments object could not be
// located; a located but unparseable object falls through to requote.
func decodeSimpleArgs(body string) (models.ToolCall, bool) {
	ident, ok := matchIdentity(body, idRe, nameRe, typeRe)
	if !ok || fullArgsRe.MatchString(body) {
		return models.ToolCall{}, false
	}
	m := simpleArgsRe.FindStringSubmatch(body)
	if m == nil {
		return models.ToolCall{}, false
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(m[1]), &parsed); err != nil {
		parsed = map[string]any{"raw": m[1]}
	}
	return ident.call(parsed), true
}

func decodeRequote(body string) (models.ToolCall, bool) {
	fixed := strings.ReplaceAll(body, "'", `"`)
	fixed = quotedAttrRe.ReplaceAllString(fixed, `=\"${2}\"`)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(fixed), &parsed); err != nil {
		return models.ToolCall{}, false
	}
	str := func(key string) string {
		s, _ := parsed[key].(string)
		return s
	}
	args, _ := parsed["arguments"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}
	return models.ToolCall{
		ID:        str("id"),
		Name:      str("name"),
		Type:      models.ToolCallType(str("type")),
		Arguments: args,
	}, true
}

func decodeIdentityOnly(body string) (models.ToolCall, bool) {
	ident, ok := matchIdentity(body, idStrictRe, nameStrictRe, typeStrictRe)
	if !ok {
		return models.ToolCall{}, false
	}
	return ident.call(map[string]any{}), true
}
