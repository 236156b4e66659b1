package tool

import (
	"context"
	"encoding/json"
	"log/slog"
)

// ToolAssembler produces the tool set of one turn.
type ToolAssembler interface {
	AssembleTools(ctx context.Context) Set
}

// Invoker calls a tool by name outside the agent loop.
type Invoker struct {
	assembler ToolAssembler
}

func NewInvoker(assembler ToolAssembler) *Invoker {
	return &Invoker{assembler: assembler}
}

// Call assembles a fresh set, looks name up exactly or sanitized and runs it.
func (i *Invoker) Call(ctx context.Context, name string, args json.RawMessage) json.RawMessage {
	tools := i.assembler.AssembleTools(ctx)
	t, ok := tools.Lookup(name)
	if !ok {
		slog.Warn("Tool not found", "name", name)
		return ErrorResult("Tool not found: " + name)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return t.Handler(ctx, args)
}

// List returns the current tool set.
func (i *Invoker) List(ctx context.Context) Set {
	return i.assembler.AssembleTools(ctx)
}

// AssemblerFunc adapts a function to ToolAssembler.
type AssemblerFunc func(ctx context.Context) Set

func (f AssemblerFunc) AssembleTools(ctx context.Context) Set { return f(ctx) }
