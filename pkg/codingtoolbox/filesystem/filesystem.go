// Package filesystem provides the default file tools of the agent: read_file,
// write_file and list_files. Expected failures (missing files, permission
// problems, wrong path kinds) are reported to the model as result text rather
// than handler errors so the conversation can continue. When a root is set,
// every path must resolve inside it.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/germanamz/babycode/pkg/tools/toolbox"
)

// errOutsideRoot is returned by resolve for paths escaping the configured root.
var errOutsideRoot = errors.New("path outside root")

// FS provides the file tools.
type FS struct {
	root   string
	notify NotifyFunc
	locks  *pathLocks
}

// New creates an FS. An empty root leaves paths unconfined and relative paths
// resolve against the working directory; otherwise they resolve against root.
// notifyFn may be nil.
func New(root string, notifyFn NotifyFunc) *FS {
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}

	return &FS{
		root:   root,
		notify: notifyFn,
		locks:  newPathLocks(),
	}
}

// Root returns the confinement root, or an empty string when unconfined.
func (f *FS) Root() string { return f.root }

// Tools returns a ToolBox containing the file tools.
func (f *FS) Tools() *toolbox.ToolBox {
	tb := toolbox.New()
	tb.Register(f.readTool(), f.writeTool(), f.listTool())

	return tb
}

// resolve returns the absolute form of path, enforcing the root when set.
func (f *FS) resolve(path string) (string, error) {
	if f.root == "" {
		return filepath.Abs(path)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(f.root, abs)
	}
	abs = filepath.Clean(abs)

	if !within(f.root, abs) {
		return "", errOutsideRoot
	}

	// Symlinks may point out of the root even when the lexical path does not.
	if target, err := filepath.EvalSymlinks(abs); err == nil {
		realRoot, rootErr := filepath.EvalSymlinks(f.root)
		if rootErr != nil {
			realRoot = f.root
		}
		if !within(realRoot, target) {
			return "", errOutsideRoot
		}
	}

	return abs, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// fileMode returns the existing file's permission bits, or 0o644 for new files.
func fileMode(path string) fs.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return 0o644
	}

	return info.Mode().Perm()
}

// --- tool definitions ---

type pathInput struct {
	Path string `json:"path"`
}

type writeInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (f *FS) readTool() toolbox.Tool {
	return toolbox.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file at the given path. Returns the file content as a string.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"The path to the file to read"}},"required":["path"]}`),
		Handler:     f.handleRead,
	}
}

func (f *FS) handleRead(_ context.Context, input json.RawMessage) (string, error) {
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("read_file: invalid input: %w", err)
	}

	abs, err := f.resolve(in.Path)
	if errors.Is(err, errOutsideRoot) {
		return fmt.Sprintf("Error: Permission denied: %s", in.Path), nil
	}
	if err != nil {
		return fmt.Sprintf("Error reading file: %v", err), nil
	}

	data, err := os.ReadFile(abs) //nolint:gosec // path is resolved against the configured root
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Sprintf("Error: File not found: %s", in.Path), nil
	case errors.Is(err, fs.ErrPermission):
		return fmt.Sprintf("Error: Permission denied: %s", in.Path), nil
	case err != nil:
		return fmt.Sprintf("Error reading file: %v", err), nil
	}

	return string(data), nil
}

func (f *FS) writeTool() toolbox.Tool {
	return toolbox.Tool{
		Name:        "write_file",
		Description: "Write content to a file at the given path. Creates the file if it doesn't exist, or overwrites if it does.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"The path to the file to write"},"content":{"type":"string","description":"The content to write to the file"}},"required":["path","content"]}`),
		Handler:     f.handleWrite,
	}
}

func (f *FS) handleWrite(ctx context.Context, input json.RawMessage) (string, error) {
	var in writeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("write_file: invalid input: %w", err)
	}

	abs, err := f.resolve(in.Path)
	if errors.Is(err, errOutsideRoot) {
		return fmt.Sprintf("Error: Permission denied: %s", in.Path), nil
	}
	if err != nil {
		return fmt.Sprintf("Error writing file: %v", err), nil
	}

	release, err := f.locks.acquire(ctx, abs)
	if err != nil {
		return "", err
	}
	defer release()

	// Read existing content for the diff (empty if the file doesn't exist yet).
	oldContent := ""
	if data, readErr := os.ReadFile(abs); readErr == nil { //nolint:gosec // path is resolved against the configured root
		oldContent = string(data)
	}

	if err := writeAtomic(abs, []byte(in.Content)); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Sprintf("Error: Permission denied: %s", in.Path), nil
		}
		return fmt.Sprintf("Error writing file: %v", err), nil
	}

	if f.notify != nil {
		if diff := computeDiff(in.Path, oldContent, in.Content); diff != "" {
			f.notify(ctx, abs, diff)
		}
	}

	return fmt.Sprintf("Successfully wrote to %s", in.Path), nil
}

// writeAtomic writes data to a temporary file next to path and renames it into
// place, creating parent directories as needed.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	mode := fileMode(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck,gosec // already failing
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return err
	}

	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best-effort cleanup
		return err
	}

	return nil
}

func (f *FS) listTool() toolbox.Tool {
	return toolbox.Tool{
		Name:        "list_files",
		Description: "List all files and directories in the given directory path.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"The directory path to list (defaults to current directory)","default":"."}},"required":[]}`),
		Handler:     f.handleList,
	}
}

func (f *FS) handleList(_ context.Context, input json.RawMessage) (string, error) {
	var in pathInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("list_files: invalid input: %w", err)
	}

	if in.Path == "" {
		in.Path = "."
	}

	abs, err := f.resolve(in.Path)
	if errors.Is(err, errOutsideRoot) {
		return fmt.Sprintf("Error: Permission denied: %s", in.Path), nil
	}
	if err != nil {
		return fmt.Sprintf("Error listing directory: %v", err), nil
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Sprintf("Error: Directory not found: %s", in.Path), nil
	case errors.Is(err, fs.ErrPermission):
		return fmt.Sprintf("Error: Permission denied: %s", in.Path), nil
	case err != nil:
		return fmt.Sprintf("Error listing directory: %v", err), nil
	case !info.IsDir():
		return fmt.Sprintf("Error: Not a directory: %s", in.Path), nil
	}

	// os.ReadDir returns entries sorted by name.
	entries, err := os.ReadDir(abs)
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Sprintf("Error: Permission denied: %s", in.Path), nil
	case err != nil:
		return fmt.Sprintf("Error listing directory: %v", err), nil
	}

	if len(entries) == 0 {
		return fmt.Sprintf("Directory is empty: %s", in.Path), nil
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if isDir(abs, e) {
			lines = append(lines, fmt.Sprintf("[DIR]  %s/", e.Name()))
		} else {
			lines = append(lines, fmt.Sprintf("[FILE] %s", e.Name()))
		}
	}

	return strings.Join(lines, "\n"), nil
}

// isDir reports whether the entry is a directory, following symlinks.
func isDir(dir string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}

	info, err := os.Stat(filepath.Join(dir, e.Name()))
	return err == nil && info.IsDir()
}
