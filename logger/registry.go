package logger

import "sync"

// named holds loggers registered under a component name, so a package can
// pick up a logger configured elsewhere (for example one carrying a run ID)
// without having it passed in.
var named sync.Map // map[string]*Logger

// Register makes l the logger returned by Get(name). A nil l removes the
// registration.
func Register(name string, l *Logger) {
	if l == nil {
		named.Delete(name)
		return
	}
	named.Store(name, l)
}

// Get returns the logger registered under name, or the global logger tagged
// with name as its component.
func Get(name string) *Logger {
	if l, ok := named.Load(name); ok {
		return l.(*Logger)
	}
	return GetGlobalLogger().WithComponent(name)
}
