package featurea

import "context"

// Extension provides hooks into the container lifecycle
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to a container
	Init(c *Container) error

	// Wrap intercepts operations (resolve, provide, static, reload, delete)
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError handles errors returned by a wrapped operation
	OnError(err error, op *Operation, c *Container)

	// OnCleanupError handles cleanup failures
	// Returns true if the error was handled, false to use default behavior
	OnCleanupError(err *CleanupError) bool

	// Dispose is called when the container is destroyed
	Dispose(c *Container) error
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(c *Container) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, c *Container) {
}

func (e *BaseExtension) OnCleanupError(err *CleanupError) bool {
	return false
}

func (e *BaseExtension) Dispose(c *Container) error {
	return nil
}

// Operation describes what operation is happening
type Operation struct {
	Kind      OperationKind
	Key       Key
	Module    *Module
	Container *Container
}

// OperationKind represents the type of operation
type OperationKind string

const (
	// OpResolve indicates a component being built by its factory
	OpResolve OperationKind = "resolve"
	// OpProvide indicates a proxy or static singleton being supplied
	OpProvide OperationKind = "provide"
	// OpStatic indicates a static block run
	OpStatic OperationKind = "static"
	// OpReload indicates a module reload
	OpReload OperationKind = "reload"
	// OpDelete indicates a module deletion
	OpDelete OperationKind = "delete"
)
