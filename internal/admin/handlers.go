package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	featurea "github.com/featurea/featurea-go"
)

type healthResponse struct {
	Status  string   `json:"status"`
	State   string   `json:"state"`
	Missing []string `json:"missing,omitempty"`
}

type bindingView struct {
	Name     string `json:"name"`
	Key      string `json:"key"`
	Artifact string `json:"artifact"`
	Provider bool   `json:"provider,omitempty"`
}

type pluginEntryView struct {
	Key      string `json:"key"`
	Artifact string `json:"artifact"`
}

type pluginView struct {
	Name    string            `json:"name"`
	Entries []pluginEntryView `json:"entries"`
}

type duplicateView struct {
	Key    string `json:"key"`
	First  string `json:"first"`
	Second string `json:"second"`
	Kept   string `json:"kept"`
}

type contentRootView struct {
	Artifact string `json:"artifact"`
	Path     string `json:"path"`
}

type registryResponse struct {
	Root         string            `json:"root"`
	Policy       string            `json:"policy"`
	Artifacts    []string          `json:"artifacts"`
	Bindings     []bindingView     `json:"bindings"`
	Plugins      []pluginView      `json:"plugins"`
	Awaited      []string          `json:"awaited"`
	Statics      []string          `json:"statics"`
	ContentRoots []contentRootView `json:"content_roots"`
	Duplicates   []duplicateView   `json:"duplicates"`
}

type moduleView struct {
	Name       string   `json:"name"`
	ID         string   `json:"id"`
	Parent     string   `json:"parent,omitempty"`
	State      string   `json:"state"`
	Generation uint64   `json:"generation"`
	Children   []string `json:"children"`
	Components []string `json:"components"`
}

// handleHealthz reports 200 once the container is ready and 503 while it is
// awaiting proxies or after it was destroyed.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	state := s.container.State()
	resp := healthResponse{
		Status: "ok",
		State:  state.String(),
	}

	status := http.StatusOK
	if state != featurea.ContainerReady {
		status = http.StatusServiceUnavailable
		resp.Status = "unavailable"
		resp.Missing = keyStrings(s.container.Missing())
	}

	s.writeJSON(w, status, resp)
}

func (s *Server) handleGetRegistry(w http.ResponseWriter, _ *http.Request) {
	reg := s.container.Registry()

	resp := registryResponse{
		Root:         reg.Root(),
		Policy:       reg.Policy().String(),
		Artifacts:    reg.Artifacts(),
		Bindings:     []bindingView{},
		Plugins:      []pluginView{},
		Awaited:      keyStrings(reg.Awaited()),
		Statics:      keyStrings(s.container.StaticKeys()),
		ContentRoots: []contentRootView{},
		Duplicates:   []duplicateView{},
	}

	for _, b := range reg.Bindings() {
		resp.Bindings = append(resp.Bindings, bindingView{
			Name:     b.Name(),
			Key:      b.Key.String(),
			Artifact: b.Artifact,
			Provider: b.Provider(),
		})
	}

	for _, name := range reg.Plugins() {
		pv := pluginView{Name: name, Entries: []pluginEntryView{}}
		for _, e := range reg.PluginEntries(name) {
			pv.Entries = append(pv.Entries, pluginEntryView{Key: e.Key, Artifact: e.Artifact})
		}
		resp.Plugins = append(resp.Plugins, pv)
	}

	for _, cr := range reg.ContentRoots() {
		resp.ContentRoots = append(resp.ContentRoots, contentRootView{Artifact: cr.Artifact, Path: cr.Path()})
	}

	for _, d := range reg.Duplicates() {
		resp.Duplicates = append(resp.Duplicates, duplicateView{
			Key:    d.Key.String(),
			First:  d.First,
			Second: d.Second,
			Kept:   d.Kept,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleProvideProxy supplies an awaited proxy from a JSON body. The decoded
// value is stored as-is, so consumers see map[string]any, []any, string,
// float64 or bool.
func (s *Server) handleProvideProxy(w http.ResponseWriter, r *http.Request) {
	key := featurea.Key(chi.URLParam(r, "key"))

	var value any
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.container.ProvideComponent(key, value); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, healthResponse{
		Status:  "accepted",
		State:   s.container.State().String(),
		Missing: keyStrings(s.container.Missing()),
	})
}

func (s *Server) handleListModules(w http.ResponseWriter, _ *http.Request) {
	modules := s.container.Modules()
	views := make([]moduleView, 0, len(modules))
	for _, m := range modules {
		views = append(views, newModuleView(m))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	m, ok := s.container.Module(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "module not found")
		return
	}
	s.writeJSON(w, http.StatusOK, newModuleView(m))
}

func (s *Server) handleReloadModule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.container.Reload(name); err != nil {
		switch {
		case errors.Is(err, featurea.ErrModuleNotFound):
			s.writeError(w, http.StatusNotFound, "module not found")
		case errors.Is(err, featurea.ErrDestroyed):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("reload module", "module", name, "error", err)
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	m, ok := s.container.Module(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "module not found")
		return
	}
	s.writeJSON(w, http.StatusOK, newModuleView(m))
}

func newModuleView(m *featurea.Module) moduleView {
	v := moduleView{
		Name:       m.Name(),
		ID:         m.ID().String(),
		State:      m.State().String(),
		Generation: m.Generation(),
		Children:   []string{},
		Components: keyStrings(m.Cached()),
	}
	if p := m.Parent(); p != nil {
		v.Parent = p.Name()
	}
	for _, child := range m.Children() {
		v.Children = append(v.Children, child.Name())
	}
	return v
}

func keyStrings(keys []featurea.Key) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
