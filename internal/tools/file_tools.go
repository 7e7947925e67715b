package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileTools provides file operations confined to a workspace directory.
type FileTools struct {
	workspacePath string
}

// NewFileTools creates a new FileTools instance.
// If workspacePath is empty, file tools will be disabled.
func NewFileTools(workspacePath string) *FileTools {
	return &FileTools{workspacePath: workspacePath}
}

// Enabled returns true if file tools are available.
func (ft *FileTools) Enabled() bool {
	return ft.workspacePath != ""
}

// WorkspacePath returns the configured workspace path.
func (ft *FileTools) WorkspacePath() string {
	return ft.workspacePath
}

// ResolvePath converts a workspace-relative path to an absolute path.
// Absolute paths are accepted only if they already lie inside the
// workspace.
func (ft *FileTools) ResolvePath(path string) (string, error) {
	if ft.workspacePath == "" {
		return "", fmt.Errorf("workspace not configured")
	}

	workspaceAbs, err := filepath.Abs(ft.workspacePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace: %w", err)
	}

	var absPath string
	if filepath.IsAbs(path) {
		absPath = filepath.Clean(path)
	} else {
		absPath = filepath.Join(workspaceAbs, path)
	}

	rel, err := filepath.Rel(workspaceAbs, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return absPath, nil
}

// Read reads the contents of a file. offset is 1-indexed; offset and
// limit count lines.
func (ft *FileTools) Read(ctx context.Context, path string, offset, limit int) (string, error) {
	absPath, err := ft.ResolvePath(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	content := string(data)

	if offset > 0 || limit > 0 {
		lines := strings.Split(content, "\n")

		startLine := 0
		if offset > 0 {
			startLine = offset - 1
		}
		if startLine >= len(lines) {
			return "", fmt.Errorf("offset %d exceeds file length (%d lines)", offset, len(lines))
		}

		endLine := len(lines)
		if limit > 0 && startLine+limit < endLine {
			endLine = startLine + limit
		}

		content = strings.Join(lines[startLine:endLine], "\n")

		if startLine > 0 || endLine < len(lines) {
			content = fmt.Sprintf("[Lines %d-%d of %d]\n%s", startLine+1, endLine, len(lines), content)
		}
	}

	const maxBytes = 50 * 1024
	if len(content) > maxBytes {
		content = content[:maxBytes] + "\n\n[... truncated, use offset/limit for more ...]"
	}

	return content, nil
}

// Write writes content to a file, creating directories as needed. With
// appendMode the content is added to the end of an existing file.
func (ft *FileTools) Write(ctx context.Context, path, content string, appendMode bool) error {
	absPath, err := ft.ResolvePath(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(absPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return f.Close()
}

// List lists files in a directory. Directories carry a trailing slash.
func (ft *FileTools) List(ctx context.Context, path string) ([]string, error) {
	absPath, err := ft.ResolvePath(path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var result []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		result = append(result, name)
	}

	return result, nil
}

// Copy copies a regular file, creating the destination directory.
func (ft *FileTools) Copy(ctx context.Context, src, dst string) error {
	srcAbs, err := ft.ResolvePath(src)
	if err != nil {
		return err
	}
	dstAbs, err := ft.ResolvePath(dst)
	if err != nil {
		return err
	}

	in, err := os.Open(srcAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", src)
		}
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.Create(dstAbs)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	return out.Close()
}

// Move renames a file or directory within the workspace.
func (ft *FileTools) Move(ctx context.Context, src, dst string) error {
	srcAbs, err := ft.ResolvePath(src)
	if err != nil {
		return err
	}
	dstAbs, err := ft.ResolvePath(dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(srcAbs); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", src)
	}
	if err := os.MkdirAll(filepath.Dir(dstAbs), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(srcAbs, dstAbs); err != nil {
		return fmt.Errorf("failed to move: %w", err)
	}
	return nil
}

// Delete removes a single file. Directories are refused.
func (ft *FileTools) Delete(ctx context.Context, path string) error {
	absPath, err := ft.ResolvePath(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return os.Remove(absPath)
}

// Search walks dir recursively and returns workspace-relative paths of
// files whose base name matches the shell pattern.
func (ft *FileTools) Search(ctx context.Context, dir, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	root, err := ft.ResolvePath(dir)
	if err != nil {
		return nil, err
	}
	workspaceAbs, _ := filepath.Abs(ft.workspacePath)

	var matches []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			rel, _ := filepath.Rel(workspaceAbs, p)
			matches = append(matches, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("directory not found: %s", dir)
		}
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Register adds the file tools to r.
func (ft *FileTools) Register(r *Registry) {
	r.Register(&Tool{
		Name:        "read_file",
		Description: "Read a file from the workspace. Optional offset (1-indexed line) and limit (lines) page through large files.",
		Parameters: Schema(map[string]any{
			"file_path": Prop("string", "Path relative to the workspace"),
			"offset":    Prop("integer", "First line to read (1-indexed)"),
			"limit":     Prop("integer", "Maximum number of lines"),
		}, "file_path"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := StringArg(args, "file_path")
			if path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			return ft.Read(ctx, path, IntArg(args, "offset", 0), IntArg(args, "limit", 0))
		},
	})

	r.Register(&Tool{
		Name:        "write_file",
		Description: "Write text to a file in the workspace, creating it and any parent directories. Set append to add to the end instead of replacing.",
		Parameters: Schema(map[string]any{
			"file_path": Prop("string", "Path relative to the workspace"),
			"text":      Prop("string", "Text to write"),
			"append":    Prop("boolean", "Append instead of overwrite"),
		}, "file_path", "text"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := StringArg(args, "file_path")
			if path == "" {
				return "", fmt.Errorf("file_path is required")
			}
			if err := ft.Write(ctx, path, StringArg(args, "text"), BoolArg(args, "append")); err != nil {
				return "", err
			}
			return fmt.Sprintf("File written successfully to %s.", path), nil
		},
	})

	r.Register(&Tool{
		Name:        "list_directory",
		Description: "List files and directories in a workspace directory. Directories end with a slash.",
		Parameters: Schema(map[string]any{
			"dir_path": Prop("string", "Directory relative to the workspace (default: workspace root)"),
		}),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			dir := StringArg(args, "dir_path")
			if dir == "" {
				dir = "."
			}
			entries, err := ft.List(ctx, dir)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return fmt.Sprintf("No files found in directory %s", dir), nil
			}
			return strings.Join(entries, "\n"), nil
		},
	})

	r.Register(&Tool{
		Name:        "copy_file",
		Description: "Copy a file within the workspace.",
		Parameters: Schema(map[string]any{
			"source_path":      Prop("string", "File to copy"),
			"destination_path": Prop("string", "Where to put the copy"),
		}, "source_path", "destination_path"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			src, dst := StringArg(args, "source_path"), StringArg(args, "destination_path")
			if err := ft.Copy(ctx, src, dst); err != nil {
				return "", err
			}
			return fmt.Sprintf("File copied successfully from %s to %s.", src, dst), nil
		},
	})

	r.Register(&Tool{
		Name:        "move_file",
		Description: "Move or rename a file within the workspace.",
		Parameters: Schema(map[string]any{
			"source_path":      Prop("string", "File to move"),
			"destination_path": Prop("string", "New location"),
		}, "source_path", "destination_path"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			src, dst := StringArg(args, "source_path"), StringArg(args, "destination_path")
			if err := ft.Move(ctx, src, dst); err != nil {
				return "", err
			}
			return fmt.Sprintf("File moved successfully from %s to %s.", src, dst), nil
		},
	})

	r.Register(&Tool{
		Name:        "file_delete",
		Description: "Delete a file from the workspace.",
		Parameters: Schema(map[string]any{
			"file_path": Prop("string", "File to delete"),
		}, "file_path"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			path := StringArg(args, "file_path")
			if err := ft.Delete(ctx, path); err != nil {
				return "", err
			}
			return fmt.Sprintf("File deleted successfully: %s.", path), nil
		},
	})

	r.Register(&Tool{
		Name:        "file_search",
		Description: "Recursively search a workspace directory for files whose name matches a shell wildcard pattern such as *.md.",
		Parameters: Schema(map[string]any{
			"dir_path": Prop("string", "Directory to search (default: workspace root)"),
			"pattern":  Prop("string", "Wildcard pattern, e.g. *.txt"),
		}, "pattern"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			dir := StringArg(args, "dir_path")
			if dir == "" {
				dir = "."
			}
			pattern := StringArg(args, "pattern")
			matches, err := ft.Search(ctx, dir, pattern)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return fmt.Sprintf("No files found for pattern %s in directory %s", pattern, dir), nil
			}
			return strings.Join(matches, "\n"), nil
		},
	})
}
