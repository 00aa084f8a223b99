package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/guilherme-santos/calcmd/internal"
	"github.com/guilherme-santos/calcmd/internal/extract"
)

var (
	// ErrNoCommand fails at the extract stage, so callers handle the text as
	// prose. An object without a kind counts too.
	ErrNoCommand = errors.New("no command found")
	ErrMalformed = errors.New("malformed command")
)

// Failure is returned by Parse, Stage tells how far the text got.
type Failure struct {
	Stage internal.Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

var (
	kindKeys    = []string{"kind", "type", "action"}
	messageKeys = []string{"message", "humanMessage", "response", "reply"}
	paramsKeys  = []string{"params", "parameters", "arguments", "args"}
)

// Parse finds the first JSON object in text and turns it into a Command.
// A malformed object gets exactly one repair attempt.
func Parse(text string) (*internal.Command, error) {
	raw, ok := extract.Object(text)
	if !ok {
		return nil, &Failure{Stage: internal.StageExtract, Err: ErrNoCommand}
	}

	var repaired bool
	obj, err := decode(raw)
	if err != nil {
		obj, err = decode(Repair(raw))
		if err != nil {
			return nil, &Failure{Stage: internal.StageParse, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
		}
		repaired = true
	}

	cmd, err := build(obj)
	if err != nil {
		return nil, err
	}
	cmd.Repaired = repaired
	return cmd, nil
}

func decode(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after object")
	}
	if obj == nil {
		return nil, errors.New("not an object")
	}
	return obj, nil
}

func build(obj map[string]any) (*internal.Command, error) {
	kindKey, kindRaw := first(obj, kindKeys)
	if kindKey == "" {
		// Any JSON object may show up in prose; without a kind it is not ours.
		return nil, &Failure{Stage: internal.StageExtract, Err: fmt.Errorf("%w: object has no kind", ErrNoCommand)}
	}
	kindStr, ok := kindRaw.(string)
	if !ok {
		return nil, &Failure{Stage: internal.StageValidate, Err: fmt.Errorf("%s must be a string", kindKey)}
	}
	kind, err := internal.ParseKind(kindStr)
	if err != nil {
		return nil, &Failure{Stage: internal.StageValidate, Err: err}
	}

	cmd := &internal.Command{
		Kind:   kind,
		Params: map[string]any{},
	}
	if key, v := first(obj, paramsKeys); key != "" {
		params, ok := v.(map[string]any)
		if !ok {
			return nil, &Failure{Stage: internal.StageValidate, Err: fmt.Errorf("%s must be an object", key)}
		}
		for k, v := range params {
			cmd.Params[k] = v
		}
	}
	if _, v := first(obj, messageKeys); v != nil {
		if msg, ok := v.(string); ok {
			cmd.Message = strings.TrimSpace(msg)
		}
	}
	for k, v := range obj {
		if k == kindKey || contains(paramsKeys, k) || contains(messageKeys, k) {
			continue
		}
		if _, ok := cmd.Params[k]; !ok {
			cmd.Params[k] = v
		}
	}
	return cmd, nil
}

func first(obj map[string]any, keys []string) (string, any) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return k, v
		}
	}
	return "", nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
