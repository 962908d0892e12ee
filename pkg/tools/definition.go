package tools

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/himanalot/auteur-sub004/pkg/claude/api"
)

// ToolDefinition describes a tool the model can invoke, together with the
// handler that services it.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
	Function    ToolFunc           `json:"-"`
}

// ToolFunc wraps the registered handler with a pre-compiled executor.
type ToolFunc struct {
	fn        interface{}
	executor  func(context.Context, json.RawMessage) (interface{}, error)
	inputType reflect.Type
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// NewToolFromFunc builds a ToolDefinition from a Go function. Supported
// signatures are func(Input) (Result, error) and
// func(context.Context, Input) (Result, error), where Input is a struct
// whose JSON schema is derived by reflection.
func NewToolFromFunc(name, description string, fn interface{}) (*ToolDefinition, error) {
	funcType := reflect.TypeOf(fn)
	if funcType == nil || funcType.Kind() != reflect.Func {
		return nil, errors.New("provided value is not a function")
	}

	if funcType.NumOut() != 2 || !funcType.Out(1).Implements(errorType) {
		return nil, errors.New("tool function must return (result, error)")
	}

	inputType, err := toolInputType(funcType)
	if err != nil {
		return nil, err
	}

	schema, err := schemaForInput(inputType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate input schema")
	}

	return &ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Function: ToolFunc{
			fn:        fn,
			executor:  makeExecutor(fn, funcType, inputType),
			inputType: inputType,
		},
	}, nil
}

// APITool converts the definition into its wire representation.
func (td *ToolDefinition) APITool() (api.Tool, error) {
	schemaBytes, err := json.Marshal(td.InputSchema)
	if err != nil {
		return api.Tool{}, errors.Wrapf(err, "failed to marshal schema for tool %s", td.Name)
	}
	return api.Tool{
		Name:        td.Name,
		Description: td.Description,
		InputSchema: schemaBytes,
	}, nil
}

// Execute invokes the handler with raw JSON arguments.
func (tf *ToolFunc) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if tf.executor == nil {
		return nil, errors.New("tool function not properly initialized")
	}
	return tf.executor(ctx, args)
}

func toolInputType(funcType reflect.Type) (reflect.Type, error) {
	switch funcType.NumIn() {
	case 1:
		if funcType.In(0) == contextType {
			return nil, nil
		}
		return funcType.In(0), nil
	case 2:
		if funcType.In(0) != contextType {
			return nil, errors.New("two-arg tool function must be (context.Context, Input)")
		}
		return funcType.In(1), nil
	default:
		return nil, errors.New("tool function must take (Input) or (context.Context, Input)")
	}
}

func schemaForInput(inputType reflect.Type) (*jsonschema.Schema, error) {
	if inputType == nil {
		return &jsonschema.Schema{Type: "object"}, nil
	}

	inputInstance := reflect.New(inputType).Elem().Interface()
	reflector := jsonschema.Reflector{
		// expand definitions inline instead of emitting $refs
		DoNotReference: true,
	}
	schema := reflector.Reflect(inputInstance)
	if schema.Type == "" && schema.Ref == "" {
		schema.Type = "object"
	}
	return schema, nil
}

func makeExecutor(fn interface{}, funcType reflect.Type, inputType reflect.Type) func(context.Context, json.RawMessage) (interface{}, error) {
	funcValue := reflect.ValueOf(fn)
	takesContext := funcType.In(0) == contextType

	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var callArgs []reflect.Value
		if takesContext {
			callArgs = append(callArgs, reflect.ValueOf(ctx))
		}

		if inputType != nil {
			input := reflect.New(inputType).Interface()
			if len(args) > 0 {
				if err := json.Unmarshal(args, input); err != nil {
					return nil, errors.Wrap(err, "failed to unmarshal arguments")
				}
			}
			callArgs = append(callArgs, reflect.ValueOf(input).Elem())
		}

		results := funcValue.Call(callArgs)
		result := results[0].Interface()
		if errValue := results[1].Interface(); errValue != nil {
			return result, errValue.(error)
		}
		return result, nil
	}
}
