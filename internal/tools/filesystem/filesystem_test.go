package filesystem

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"
)

// MockFileSystem is a mock implementation of the FileSystem interface.
type MockFileSystem struct {
	StatFunc      func(name string) (os.FileInfo, error)
	ReadFileFunc  func(name string) ([]byte, error)
	WriteFileFunc func(name string, data []byte, perm os.FileMode) error
	MkdirAllFunc  func(path string, perm os.FileMode) error
	RemoveFunc    func(name string) error
	ReadDirFunc   func(name string) ([]os.DirEntry, error)
	WalkDirFunc   func(root string, fn fs.WalkDirFunc) error
}

func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if m.StatFunc != nil {
		return m.StatFunc(name)
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(name)
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	if m.WriteFileFunc != nil {
		return m.WriteFileFunc(name, data, perm)
	}
	return nil
}

func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if m.MkdirAllFunc != nil {
		return m.MkdirAllFunc(path, perm)
	}
	return nil
}

func (m *MockFileSystem) Remove(name string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(name)
	}
	return nil
}

func (m *MockFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	if m.ReadDirFunc != nil {
		return m.ReadDirFunc(name)
	}
	return nil, nil
}

func (m *MockFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	if m.WalkDirFunc != nil {
		return m.WalkDirFunc(root, fn)
	}
	return nil
}

type mockFileInfo struct {
	name  string
	isDir bool
}

func (m mockFileInfo) Name() string       { return m.name }
func (m mockFileInfo) Size() int64        { return 0 }
func (m mockFileInfo) Mode() os.FileMode  { return 0 }
func (m mockFileInfo) ModTime() time.Time { return time.Now() }
func (m mockFileInfo) IsDir() bool        { return m.isDir }
func (m mockFileInfo) Sys() any           { return nil }

type mockDirEntry struct {
	name  string
	isDir bool
}

func (m mockDirEntry) Name() string               { return m.name }
func (m mockDirEntry) IsDir() bool                { return m.isDir }
func (m mockDirEntry) Type() os.FileMode          { return 0 }
func (m mockDirEntry) Info() (os.FileInfo, error) { return nil, nil }

func TestResolveInRoot(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative path", "internal/agent.go", false},
		{"dot path", ".", false},
		{"empty path", "", false},
		{"parent escape", "../secret.txt", true},
		{"nested escape", "foo/../../secret.txt", true},
		{"escape with clean segments", "a/b/../../../etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveInRoot("/repo", tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ResolveInRoot(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestReadFileImpl(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		mockContent string
		mockErr     error
		wantErr     bool
		wantType    string
	}{
		{
			name:        "small file returns full content",
			path:        "test.txt",
			mockContent: "hello world",
			wantType:    "full",
		},
		{
			name:        "medium file gets size note",
			path:        "medium.go",
			mockContent: strings.Repeat("line\n", 250),
			wantType:    "full",
		},
		{
			name:        "large file returns outline",
			path:        "large.go",
			mockContent: "package big\n\nfunc A() {}\n" + strings.Repeat("// filler\n", 500),
			wantType:    "outline",
		},
		{
			name:    "missing file",
			path:    "missing.txt",
			mockErr: os.ErrNotExist,
			wantErr: true,
		},
		{
			name:    "path traversal attempt",
			path:    "../secret.txt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockFS := &MockFileSystem{
				ReadFileFunc: func(name string) ([]byte, error) {
					if tt.mockErr != nil {
						return nil, tt.mockErr
					}
					return []byte(tt.mockContent), nil
				},
			}

			got, err := readFileImpl(mockFS, "/repo", tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readFileImpl() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			var result map[string]any
			if err := json.Unmarshal([]byte(got), &result); err != nil {
				t.Fatalf("result is not valid JSON: %v", err)
			}
			if result["content_type"] != tt.wantType {
				t.Errorf("content_type = %v, want %v", result["content_type"], tt.wantType)
			}
		})
	}
}

func TestReadFileOutlineListsDeclarations(t *testing.T) {
	content := "package big\n\ntype Config struct{}\n\nfunc Run() {}\n" + strings.Repeat("\tfiller()\n", 500)
	mockFS := &MockFileSystem{
		ReadFileFunc: func(name string) ([]byte, error) { return []byte(content), nil },
	}

	got, err := readFileImpl(mockFS, "/repo", "big.go")
	if err != nil {
		t.Fatalf("readFileImpl() error = %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(got), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	outline, _ := result["content"].(string)
	for _, want := range []string{"type Config struct{}", "func Run() {}", "OUTLINE MODE"} {
		if !strings.Contains(outline, want) {
			t.Errorf("outline missing %q", want)
		}
	}
	if strings.Contains(outline, "filler()") {
		t.Error("outline should not include function bodies")
	}
}

func TestWriteFileImpl(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		content  string
		writeErr error
		mkdirErr error
		wantErr  bool
	}{
		{"writes file", "new.txt", "content", nil, nil, false},
		{"mkdir failure", "dir/new.txt", "content", nil, fmt.Errorf("disk full"), true},
		{"write failure", "new.txt", "content", fmt.Errorf("read-only fs"), nil, true},
		{"path escape", "../../evil.txt", "content", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wrotePath string
			var wroteData []byte
			mockFS := &MockFileSystem{
				MkdirAllFunc: func(path string, perm os.FileMode) error { return tt.mkdirErr },
				WriteFileFunc: func(name string, data []byte, perm os.FileMode) error {
					wrotePath = name
					wroteData = data
					return tt.writeErr
				},
			}

			got, err := writeFileImpl(mockFS, "/repo", tt.path, tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("writeFileImpl() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if wrotePath != "/repo/"+tt.path {
				t.Errorf("wrote to %q", wrotePath)
			}
			if string(wroteData) != tt.content {
				t.Errorf("wrote %q, want %q", wroteData, tt.content)
			}
			if !strings.Contains(got, `"success":true`) {
				t.Errorf("result should report success: %s", got)
			}
		})
	}
}

func TestDeleteFileImpl(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		statInfo  os.FileInfo
		statErr   error
		removeErr error
		wantErr   bool
		wantMsg   string
	}{
		{
			name:     "deletes existing file",
			path:     "old.txt",
			statInfo: mockFileInfo{name: "old.txt"},
		},
		{
			name:    "missing file is not an error",
			path:    "gone.txt",
			statErr: os.ErrNotExist,
			wantMsg: "already deleted",
		},
		{
			name:     "refuses directories",
			path:     "src",
			statInfo: mockFileInfo{name: "src", isDir: true},
			wantErr:  true,
		},
		{
			name:      "remove failure",
			path:      "locked.txt",
			statInfo:  mockFileInfo{name: "locked.txt"},
			removeErr: fmt.Errorf("permission denied"),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockFS := &MockFileSystem{
				StatFunc: func(name string) (os.FileInfo, error) {
					if tt.statErr != nil {
						return nil, tt.statErr
					}
					return tt.statInfo, nil
				},
				RemoveFunc: func(name string) error { return tt.removeErr },
			}

			got, err := deleteFileImpl(mockFS, "/repo", tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("deleteFileImpl() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(got, tt.wantMsg) {
				t.Errorf("result %q missing %q", got, tt.wantMsg)
			}
		})
	}
}

func TestListFilesImpl(t *testing.T) {
	entries := []os.DirEntry{
		mockDirEntry{name: "main.go"},
		mockDirEntry{name: ".env"},
		mockDirEntry{name: "node_modules", isDir: true},
		mockDirEntry{name: "internal", isDir: true},
		mockDirEntry{name: "build.log"},
	}
	mockFS := &MockFileSystem{
		ReadFileFunc: func(name string) ([]byte, error) {
			if strings.HasSuffix(name, ".gitignore") {
				return []byte("*.log\n# comment\n"), nil
			}
			return nil, os.ErrNotExist
		},
		ReadDirFunc: func(name string) ([]os.DirEntry, error) { return entries, nil },
	}

	got, err := listFilesImpl(mockFS, "/repo", "", false, 100)
	if err != nil {
		t.Fatalf("listFilesImpl() error = %v", err)
	}

	var result struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal([]byte(got), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	want := []string{"main.go", "internal/"}
	if len(result.Files) != len(want) {
		t.Fatalf("files = %v, want %v", result.Files, want)
	}
	for i := range want {
		if result.Files[i] != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, result.Files[i], want[i])
		}
	}
}

func TestListFilesImplLimit(t *testing.T) {
	var entries []os.DirEntry
	for i := 0; i < 20; i++ {
		entries = append(entries, mockDirEntry{name: fmt.Sprintf("file%02d.go", i)})
	}
	mockFS := &MockFileSystem{
		ReadDirFunc: func(name string) ([]os.DirEntry, error) { return entries, nil },
	}

	got, err := listFilesImpl(mockFS, "/repo", "", false, 5)
	if err != nil {
		t.Fatalf("listFilesImpl() error = %v", err)
	}

	var result struct {
		Files     []string `json:"files"`
		Truncated bool     `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(got), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(result.Files) != 5 {
		t.Errorf("got %d files, want 5", len(result.Files))
	}
	if !result.Truncated {
		t.Error("expected truncated flag")
	}
}
