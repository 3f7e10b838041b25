// Package modload interprets generated kernel modules in process.
package modload

import (
	"fmt"
	"go/parser"
	"go/token"
	"log/slog"
	"os"
	"strconv"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/roach88/stencil/internal/codegen"
	"github.com/roach88/stencil/internal/engine"
)

var allowedImports = map[string]bool{
	"fmt":           true,
	"math":          true,
	codegen.ABIPath: true,
}

type (
	createFunc   = func(engine.Host, []engine.Field) error
	registerFunc = func(engine.Host) error
	destroyFunc  = func() error
	initFunc     = func([]engine.Field) error
)

// Loader opens generated kernel modules with the yaegi interpreter.
type Loader struct {
	Logger *slog.Logger
}

// Open reads and interprets the module at path.
func (l Loader) Open(path string) (engine.Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	m, err := l.OpenSource(path, src)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// OpenSource interprets module source. name is used in errors only.
func (l Loader) OpenSource(name string, src []byte) (*Module, error) {
	if err := checkImports(name, src); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("load host symbols: %w", err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("module %s: %w", name, err)
	}

	m := &Module{name: name}
	if err := lookup(i, name, "CreateKernels", &m.create); err != nil {
		return nil, err
	}
	if err := lookup(i, name, "RegisterKernels", &m.register); err != nil {
		return nil, err
	}
	if err := lookup(i, name, "DestroyKernels", &m.destroy); err != nil {
		return nil, err
	}
	if _, err := i.Eval("main.InitArrays"); err == nil {
		if err := lookup(i, name, "InitArrays", &m.init); err != nil {
			return nil, err
		}
	}

	if l.Logger != nil {
		l.Logger.Debug("module loaded", "module", name, "init", m.init != nil)
	}
	return m, nil
}

func lookup[F any](i *interp.Interpreter, name, symbol string, dst *F) error {
	v, err := i.Eval("main." + symbol)
	if err != nil {
		return fmt.Errorf("module %s: missing %s: %w", name, symbol, err)
	}
	fn, ok := v.Interface().(F)
	if !ok {
		return fmt.Errorf("module %s: %s has type %s", name, symbol, v.Type())
	}
	*dst = fn
	return nil
}

func checkImports(name string, src []byte) error {
	f, err := parser.ParseFile(token.NewFileSet(), name, src, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("module %s: %w", name, err)
	}
	if f.Name.Name != "main" {
		return fmt.Errorf("module %s: package %s, want main", name, f.Name.Name)
	}
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("module %s: %w", name, err)
		}
		if !allowedImports[path] {
			return fmt.Errorf("module %s: import %q not allowed", name, path)
		}
	}
	return nil
}

// Module is an interpreted kernel module.
type Module struct {
	name     string
	create   createFunc
	register registerFunc
	destroy  destroyFunc
	init     initFunc
}

var _ engine.Module = (*Module)(nil)

// Name returns the name the module was opened under.
func (m *Module) Name() string { return m.name }

func (m *Module) CreateKernels(host engine.Host, arrays []engine.Field) error {
	return m.create(host, arrays)
}

func (m *Module) RegisterKernels(host engine.Host) error {
	return m.register(host)
}

func (m *Module) DestroyKernels() error {
	return m.destroy()
}

// HasInit reports whether the module defines InitArrays.
func (m *Module) HasInit() bool { return m.init != nil }

// InitArrays fills the arrays' initial time layers.
func (m *Module) InitArrays(arrays []engine.Field) error {
	if m.init == nil {
		return fmt.Errorf("module %s has no InitArrays", m.name)
	}
	return m.init(arrays)
}

// Close drops the interpreted functions.
func (m *Module) Close() error {
	m.create, m.register, m.destroy, m.init = nil, nil, nil, nil
	return nil
}
