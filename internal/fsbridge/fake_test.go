package fsbridge

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// fakePlatform is an in-memory platform that counts prompts.
type fakePlatform struct {
	mu       sync.Mutex
	caps     Capabilities
	picked   *fakeDir
	dirs     map[string]*fakeDir
	pickErr  error
	openErr  error
	status   PermissionStatus
	onPrompt PermissionStatus
	probeErr error
	mkdirErr error
	// probeGate, when set, blocks Entries until closed.
	probeGate chan struct{}
	probing   chan struct{}

	picks    int
	requests int
	probes   int
}

func newFakePlatform() *fakePlatform {
	p := &fakePlatform{
		caps:     Capabilities{DirectoryPicker: true, PermissionQuery: true},
		dirs:     map[string]*fakeDir{},
		status:   PermissionGranted,
		onPrompt: PermissionGranted,
	}
	p.picked = p.newDir("docs", "/docs")
	return p
}

func (p *fakePlatform) newDir(name, key string) *fakeDir {
	d := &fakeDir{platform: p, name: name, key: key, dirs: map[string]*fakeDir{}, files: map[string][]byte{}}
	p.dirs[key] = d
	return d
}

func (p *fakePlatform) counts() (picks, requests, probes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.picks, p.requests, p.probes
}

func (p *fakePlatform) set(fn func(p *fakePlatform)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakePlatform) Capabilities() Capabilities { return p.caps }

func (p *fakePlatform) PickDirectory(context.Context) (DirectoryHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.picks++
	if p.pickErr != nil {
		return nil, p.pickErr
	}
	return p.picked, nil
}

func (p *fakePlatform) OpenHandle(_ context.Context, key string) (DirectoryHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	d, ok := p.dirs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

type fakeDir struct {
	platform *fakePlatform
	name     string
	key      string
	dirs     map[string]*fakeDir
	files    map[string][]byte
}

func (d *fakeDir) Name() string { return d.name }

func (d *fakeDir) Key() string { return d.key }

func (d *fakeDir) QueryPermission(context.Context, AccessMode) (PermissionStatus, error) {
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	return d.platform.status, nil
}

func (d *fakeDir) RequestPermission(context.Context, AccessMode) (PermissionStatus, error) {
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	d.platform.requests++
	d.platform.status = d.platform.onPrompt
	return d.platform.status, nil
}

func (d *fakeDir) Entries(context.Context) ([]string, error) {
	d.platform.mu.Lock()
	d.platform.probes++
	gate, probing, probeErr := d.platform.probeGate, d.platform.probing, d.platform.probeErr
	d.platform.probing = nil
	d.platform.mu.Unlock()
	if probing != nil {
		close(probing)
	}
	if gate != nil {
		<-gate
	}
	if probeErr != nil {
		return nil, probeErr
	}
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	var names []string
	for name := range d.dirs {
		names = append(names, name)
	}
	for name := range d.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *fakeDir) Directory(_ context.Context, name string, create bool) (DirectoryHandle, error) {
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	if child, ok := d.dirs[name]; ok {
		return child, nil
	}
	if !create {
		return nil, ErrNotFound
	}
	if d.platform.mkdirErr != nil {
		return nil, d.platform.mkdirErr
	}
	child := d.platform.newDir(name, d.key+"/"+name)
	d.dirs[name] = child
	return child, nil
}

func (d *fakeDir) Move(_ context.Context, from, to string) error {
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	child, ok := d.dirs[from]
	if !ok {
		return ErrNotFound
	}
	if _, exists := d.dirs[to]; exists {
		return errors.New("destination exists")
	}
	delete(d.dirs, from)
	child.name = to
	d.dirs[to] = child
	return nil
}

func (d *fakeDir) Remove(_ context.Context, name string) error {
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	if _, ok := d.dirs[name]; ok {
		delete(d.dirs, name)
		return nil
	}
	if _, ok := d.files[name]; ok {
		delete(d.files, name)
		return nil
	}
	return ErrNotFound
}

func (d *fakeDir) ReadFile(_ context.Context, name string) ([]byte, error) {
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	data, ok := d.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (d *fakeDir) WriteFile(_ context.Context, name string, data []byte) error {
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	d.files[name] = append([]byte(nil), data...)
	return nil
}

func (d *fakeDir) has(name string) bool {
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	_, ok := d.dirs[name]
	return ok
}

func (d *fakeDir) child(name string) *fakeDir {
	d.platform.mu.Lock()
	defer d.platform.mu.Unlock()
	return d.dirs[name]
}

// fakeSettings is a map-backed Settings.
type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: map[string]string{}}
}

func (s *fakeSettings) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeSettings) PutSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *fakeSettings) DeleteSetting(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *fakeSettings) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}
