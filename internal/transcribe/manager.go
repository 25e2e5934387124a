package transcribe

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/extrophi/voicejournal/internal/apperr"
)

// entry pairs an engine with its own lock. The lock serializes Transcribe
// and lifecycle calls per engine; the registry never holds two entry locks
// at once, and capture never contends with transcription.
type entry struct {
	mu     sync.Mutex
	plugin Plugin
}

// Handle is a shared, lock-protected reference to one registered engine.
type Handle struct {
	e *entry
}

// Do runs fn with the engine lock held.
func (h *Handle) Do(fn func(Plugin) error) error {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return fn(h.e.plugin)
}

// Initialize brings the engine to the Ready state.
func (h *Handle) Initialize() error {
	return h.Do(func(p Plugin) error { return p.Initialize() })
}

// Shutdown returns the engine to the Uninitialized state.
func (h *Handle) Shutdown() error {
	return h.Do(func(p Plugin) error { return p.Shutdown() })
}

// IsInitialized reports the engine's lifecycle state.
func (h *Handle) IsInitialized() bool {
	var init bool
	_ = h.Do(func(p Plugin) error { init = p.IsInitialized(); return nil })
	return init
}

// Manager owns the registry of named engines and the identity of the single
// active one. It is safe for concurrent use from any number of goroutines.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	active  string
	log     *slog.Logger
}

// NewManager returns an empty registry. The first engine registered becomes
// active automatically.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		log:     log,
	}
}

// Register adds an engine under its own name. Registering a second engine
// with an existing name fails; switching the active engine never happens as
// a side effect of registration after the first.
func (m *Manager) Register(p Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, ok := m.entries[name]; ok {
		return apperr.E(apperr.KindDuplicatePlugin, "plugin %q is already registered", name)
	}
	m.entries[name] = &entry{plugin: p}
	if m.active == "" {
		m.active = name
	}
	m.log.Info("plugin registered", "plugin", name, "version", p.Version(), "active", m.active == name)
	return nil
}

// SwitchPlugin changes which engine services Transcribe. Pure bookkeeping:
// it neither initializes the new engine nor shuts down the old one.
func (m *Manager) SwitchPlugin(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[name]; !ok {
		return apperr.E(apperr.KindPluginNotFound, "plugin %q is not registered", name)
	}
	m.active = name
	m.log.Info("active plugin switched", "plugin", name)
	return nil
}

// ActiveName returns the active engine's name, or "" before any
// registration.
func (m *Manager) ActiveName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// GetActive returns a handle to the active engine.
func (m *Manager) GetActive() (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == "" {
		return nil, apperr.E(apperr.KindPluginNotFound, "no active plugin")
	}
	return &Handle{e: m.entries[m.active]}, nil
}

// GetPlugin returns a handle to a named engine.
func (m *Manager) GetPlugin(name string) (*Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	if !ok {
		return nil, apperr.E(apperr.KindPluginNotFound, "plugin %q is not registered", name)
	}
	return &Handle{e: e}, nil
}

// Transcribe delegates to the active engine under its lock. A panic inside
// the engine (an FFI crash, typically) is contained here and surfaced as a
// transcription_failed error; the lock is released on the way out, so one
// crashed call never disables the engine for later callers.
func (m *Manager) Transcribe(audio *AudioData) (*Transcript, error) {
	h, err := m.GetActive()
	if err != nil {
		return nil, err
	}

	var result *Transcript
	err = h.Do(func(p Plugin) error {
		var terr error
		result, terr = safeTranscribe(p, audio)
		return terr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func safeTranscribe(p Plugin, audio *AudioData) (t *Transcript, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
			err = apperr.E(apperr.KindTranscriptionFailed, "plugin %q panicked: %v", p.Name(), r)
		}
	}()
	return p.Transcribe(audio)
}

// InitializeAll initializes every registered engine independently and
// reports a per-engine result. One failure does not stop the others.
func (m *Manager) InitializeAll() map[string]error {
	return m.applyAll(func(p Plugin) error { return p.Initialize() })
}

// ShutdownAll shuts every registered engine down independently.
func (m *Manager) ShutdownAll() map[string]error {
	return m.applyAll(func(p Plugin) error { return p.Shutdown() })
}

func (m *Manager) applyAll(fn func(Plugin) error) map[string]error {
	m.mu.RLock()
	handles := make(map[string]*Handle, len(m.entries))
	for name, e := range m.entries {
		handles[name] = &Handle{e: e}
	}
	m.mu.RUnlock()

	report := make(map[string]error, len(handles))
	for name, h := range handles {
		report[name] = h.Do(fn)
	}
	return report
}

// ListPlugins returns a name-sorted snapshot of the registry.
func (m *Manager) ListPlugins() []PluginInfo {
	m.mu.RLock()
	active := m.active
	handles := make(map[string]*Handle, len(m.entries))
	for name, e := range m.entries {
		handles[name] = &Handle{e: e}
	}
	m.mu.RUnlock()

	infos := make([]PluginInfo, 0, len(handles))
	for name, h := range handles {
		var info PluginInfo
		_ = h.Do(func(p Plugin) error {
			info = PluginInfo{
				Name:        p.Name(),
				Version:     p.Version(),
				Active:      name == active,
				Initialized: p.IsInitialized(),
			}
			return nil
		})
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
