package featurea

import "fmt"

// Plugin is a typed, ordered extension point. Plugins with the same name share
// one entry list regardless of T.
type Plugin[T any] struct {
	name string
}

// NewPlugin creates a plugin handle
func NewPlugin[T any](name string) Plugin[T] {
	return Plugin[T]{name: name}
}

// Name returns the plugin name
func (p Plugin[T]) Name() string {
	return p.name
}

// PluginEntry is one contribution to a plugin list
type PluginEntry struct {
	Key      string
	Artifact string
	Factory  Factory
}

type pluginInstall struct {
	name    string
	entries []PluginEntry
}

// PluginBuilder collects entries inside an Install block
type PluginBuilder[T any] struct {
	artifact string
	entries  []PluginEntry
}

// Add appends an entry. Entries keep the order they are added in.
func (pb *PluginBuilder[T]) Add(key string, factory func(ctx *ResolveCtx) (T, error)) {
	pb.entries = append(pb.entries, PluginEntry{
		Key:      key,
		Artifact: pb.artifact,
		Factory: func(ctx *ResolveCtx) (any, error) {
			return factory(ctx)
		},
	})
}

// Install appends entries to a plugin list
func Install[T any](b *DependencyBuilder, plugin Plugin[T], build func(pb *PluginBuilder[T])) {
	pb := &PluginBuilder[T]{artifact: b.name}
	build(pb)

	b.InstallEntries(plugin.name, pb.entries...)
}

// InstallEntries appends untyped entries to the named plugin list. Manifest
// loaders use it where the value type is only known to the consumer.
func (b *DependencyBuilder) InstallEntries(plugin string, entries ...PluginEntry) {
	install := pluginInstall{name: plugin, entries: make([]PluginEntry, 0, len(entries))}
	for _, e := range entries {
		if e.Artifact == "" {
			e.Artifact = b.name
		}
		install.entries = append(install.entries, e)
	}
	b.decls = append(b.decls, declaration{kind: declPlugin, plugin: install})
}

// PluginEntries returns the flattened entries of a plugin in declaration order
func PluginEntries[T any](reg *DependencyRegistry, plugin Plugin[T]) []PluginEntry {
	return reg.PluginEntries(plugin.name)
}

// LoadPlugin instantiates every entry of a plugin against m, in declared order.
// Plugin instances are not cached; each call builds a fresh list.
func LoadPlugin[T any](m *Module, plugin Plugin[T]) ([]T, error) {
	entries := m.container.registry.PluginEntries(plugin.name)
	out := make([]T, 0, len(entries))

	for _, entry := range entries {
		ctx := newResolveCtx(m, Key(plugin.name+"/"+entry.Key), nil)
		val, err := entry.Factory(ctx)
		if err != nil {
			ctx.abort()
			return nil, fmt.Errorf("plugin %s entry %q from artifact %q: %w", plugin.name, entry.Key, entry.Artifact, err)
		}

		typed, err := SafeTypeAssertion[T](val)
		if err != nil {
			ctx.abort()
			return nil, fmt.Errorf("plugin %s entry %q: %w", plugin.name, entry.Key, err)
		}

		m.adoptCleanups(ctx)
		out = append(out, typed)
	}

	return out, nil
}
