package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"time"

	"gallery-sync/internal/protocol"
)

type memNode struct {
	dir     bool
	data    []byte
	modTime time.Time
}

// memRemote is an in-memory protocol.Protocol.
type memRemote struct {
	nodes     map[string]*memNode
	connected bool

	listErr    map[string]error
	putErr     map[string]error
	panicOnPut bool

	puts        int
	gets        int
	disconnects int
}

func newMemRemote() *memRemote {
	return &memRemote{
		nodes:   map[string]*memNode{"/": {dir: true}},
		listErr: map[string]error{},
		putErr:  map[string]error{},
	}
}

// mkdirAll and writeFile seed the tree directly.
func (m *memRemote) mkdirAll(p string) {
	p = path.Clean(p)
	for p != "/" {
		if _, ok := m.nodes[p]; !ok {
			m.nodes[p] = &memNode{dir: true}
		}
		p = path.Dir(p)
	}
}

func (m *memRemote) writeFile(p string, size int) {
	m.mkdirAll(path.Dir(p))
	m.nodes[path.Clean(p)] = &memNode{data: bytes.Repeat([]byte("r"), size)}
}

func (m *memRemote) exists(p string) bool {
	_, ok := m.nodes[path.Clean(p)]
	return ok
}

// names lists the children of dir, sorted.
func (m *memRemote) names(dir string) []string {
	dir = path.Clean(dir)
	var out []string
	for p := range m.nodes {
		if p != "/" && path.Dir(p) == dir {
			out = append(out, path.Base(p))
		}
	}
	sort.Strings(out)
	return out
}

// snapshot copies the whole tree for before/after comparisons.
func (m *memRemote) snapshot() map[string]string {
	out := make(map[string]string, len(m.nodes))
	for p, n := range m.nodes {
		out[p] = fmt.Sprintf("%v:%s:%s", n.dir, n.data, n.modTime)
	}
	return out
}

func (m *memRemote) Connect(ctx context.Context, config *protocol.ConnectionConfig) error {
	m.connected = true
	return nil
}

func (m *memRemote) Disconnect() error {
	m.connected = false
	m.disconnects++
	return nil
}

func (m *memRemote) IsConnected() bool { return m.connected }

func (m *memRemote) List(ctx context.Context, dir string) ([]protocol.FileInfo, error) {
	dir = path.Clean(dir)
	if err := m.listErr[dir]; err != nil {
		return nil, err
	}
	n, ok := m.nodes[dir]
	if !ok || !n.dir {
		return nil, fmt.Errorf("list %s: %w", dir, fs.ErrNotExist)
	}
	var out []protocol.FileInfo
	for _, name := range m.names(dir) {
		out = append(out, m.info(path.Join(dir, name)))
	}
	return out, nil
}

func (m *memRemote) info(p string) protocol.FileInfo {
	n := m.nodes[p]
	return protocol.FileInfo{Name: path.Base(p), Size: int64(len(n.data)), IsDir: n.dir, ModTime: n.modTime}
}

func (m *memRemote) Stat(ctx context.Context, p string) (*protocol.FileInfo, error) {
	p = path.Clean(p)
	if _, ok := m.nodes[p]; !ok {
		return nil, nil
	}
	fi := m.info(p)
	return &fi, nil
}

func (m *memRemote) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	n, ok := m.nodes[path.Clean(p)]
	if !ok || n.dir {
		return nil, fs.ErrNotExist
	}
	m.gets++
	return io.NopCloser(bytes.NewReader(n.data)), nil
}

func (m *memRemote) Put(ctx context.Context, r io.Reader, p string) (int64, error) {
	p = path.Clean(p)
	if m.panicOnPut {
		panic("boom")
	}
	if err := m.putErr[p]; err != nil {
		return 0, err
	}
	if parent, ok := m.nodes[path.Dir(p)]; !ok || !parent.dir {
		return 0, fmt.Errorf("put %s: parent missing", p)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	m.puts++
	m.nodes[p] = &memNode{data: data}
	return int64(len(data)), nil
}

func (m *memRemote) Remove(ctx context.Context, p string) error {
	p = path.Clean(p)
	n, ok := m.nodes[p]
	if !ok || n.dir {
		return fmt.Errorf("remove %s: not a file", p)
	}
	delete(m.nodes, p)
	return nil
}

func (m *memRemote) Mkdir(ctx context.Context, p string) error {
	p = path.Clean(p)
	if _, ok := m.nodes[p]; ok {
		return fs.ErrExist
	}
	if parent, ok := m.nodes[path.Dir(p)]; !ok || !parent.dir {
		return errors.New("parent missing")
	}
	m.nodes[p] = &memNode{dir: true}
	return nil
}

func (m *memRemote) RemoveDir(ctx context.Context, p string) error {
	p = path.Clean(p)
	if len(m.names(p)) > 0 {
		return fmt.Errorf("rmdir %s: not empty", p)
	}
	delete(m.nodes, p)
	return nil
}

func (m *memRemote) GetProtocolName() string { return "mem" }
