package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileTools_ResolvePath(t *testing.T) {
	workspace := t.TempDir()
	ft := NewFileTools(workspace)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative path", "test.txt", false},
		{"nested path", "dir/subdir/file.txt", false},
		{"dot prefix", "./test.txt", false},
		{"workspace root", ".", false},
		{"absolute inside", filepath.Join(workspace, "a.txt"), false},
		{"parent escape attempt", "../outside.txt", true},
		{"absolute escape attempt", "/etc/passwd", true},
		{"sneaky escape", "dir/../../outside.txt", true},
		{"sibling prefix", "../" + filepath.Base(workspace) + "2/x.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ft.ResolvePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ResolvePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestFileTools_ReadWrite(t *testing.T) {
	workspace := t.TempDir()
	ft := NewFileTools(workspace)
	ctx := context.Background()

	content := "Hello, World!\nLine 2\nLine 3"
	if err := ft.Write(ctx, "test.txt", content, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, "test.txt")); err != nil {
		t.Fatalf("File not created: %v", err)
	}

	got, err := ft.Read(ctx, "test.txt", 0, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != content {
		t.Errorf("Read content mismatch: got %q, want %q", got, content)
	}

	got, err = ft.Read(ctx, "test.txt", 2, 1)
	if err != nil {
		t.Fatalf("Read with offset failed: %v", err)
	}
	if got != "[Lines 2-2 of 3]\nLine 2" {
		t.Errorf("Read with offset mismatch: got %q", got)
	}

	if _, err := ft.Read(ctx, "test.txt", 10, 0); err == nil {
		t.Error("offset past end should fail")
	}

	if err := ft.Write(ctx, "test.txt", "\nLine 4", true); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	got, _ = ft.Read(ctx, "test.txt", 0, 0)
	if got != content+"\nLine 4" {
		t.Errorf("after append: %q", got)
	}

	if err := ft.Write(ctx, "a/b/c/deep.txt", "deep", false); err != nil {
		t.Fatalf("nested write failed: %v", err)
	}
}

func TestFileTools_List(t *testing.T) {
	workspace := t.TempDir()
	os.WriteFile(filepath.Join(workspace, "file1.txt"), []byte("test"), 0o644)
	os.WriteFile(filepath.Join(workspace, "file2.md"), []byte("test"), 0o644)
	os.MkdirAll(filepath.Join(workspace, "subdir"), 0o755)

	ft := NewFileTools(workspace)
	entries, err := ft.List(context.Background(), ".")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if strings.Join(entries, ",") != "file1.txt,file2.md,subdir/" {
		t.Errorf("entries = %v", entries)
	}

	if _, err := ft.List(context.Background(), "nope"); err == nil {
		t.Error("listing a missing directory should fail")
	}
}

func TestFileTools_CopyMoveDelete(t *testing.T) {
	workspace := t.TempDir()
	ft := NewFileTools(workspace)
	ctx := context.Background()

	if err := ft.Write(ctx, "src.txt", "payload", false); err != nil {
		t.Fatal(err)
	}

	if err := ft.Copy(ctx, "src.txt", "backup/copy.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got, _ := ft.Read(ctx, "backup/copy.txt", 0, 0); got != "payload" {
		t.Errorf("copy content = %q", got)
	}

	if err := ft.Move(ctx, "src.txt", "moved/dst.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, "src.txt")); !os.IsNotExist(err) {
		t.Error("source still present after move")
	}

	if err := ft.Delete(ctx, "moved/dst.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ft.Delete(ctx, "moved/dst.txt"); err == nil {
		t.Error("deleting a missing file should fail")
	}
	if err := ft.Delete(ctx, "backup"); err == nil {
		t.Error("deleting a directory should fail")
	}
	if err := ft.Copy(ctx, "backup/copy.txt", "../escape.txt"); err == nil {
		t.Error("copy outside the workspace should fail")
	}
	if err := ft.Move(ctx, "missing.txt", "x.txt"); err == nil {
		t.Error("moving a missing file should fail")
	}
}

func TestFileTools_Search(t *testing.T) {
	workspace := t.TempDir()
	ft := NewFileTools(workspace)
	ctx := context.Background()
	for _, p := range []string{"notes.md", "docs/guide.md", "docs/deep/readme.md", "docs/image.png"} {
		if err := ft.Write(ctx, p, "x", false); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ft.Search(ctx, ".", "*.md")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if strings.Join(got, ",") != "docs/deep/readme.md,docs/guide.md,notes.md" {
		t.Errorf("Search() = %v", got)
	}

	got, _ = ft.Search(ctx, "docs", "*.png")
	if len(got) != 1 || got[0] != "docs/image.png" {
		t.Errorf("Search(docs) = %v", got)
	}

	if _, err := ft.Search(ctx, ".", "[bad"); err == nil {
		t.Error("malformed pattern should fail")
	}
	if _, err := ft.Search(ctx, "missing", "*"); err == nil {
		t.Error("missing directory should fail")
	}
}

func TestFileTools_Disabled(t *testing.T) {
	ft := NewFileTools("")
	if ft.Enabled() {
		t.Error("FileTools should be disabled with empty path")
	}
	ctx := context.Background()
	if _, err := ft.Read(ctx, "test.txt", 0, 0); err == nil {
		t.Error("Read should fail when disabled")
	}
	if err := ft.Write(ctx, "test.txt", "content", false); err == nil {
		t.Error("Write should fail when disabled")
	}
	if _, err := ft.List(ctx, "."); err == nil {
		t.Error("List should fail when disabled")
	}
}

func TestFileTools_RegisteredHandlers(t *testing.T) {
	workspace := t.TempDir()
	ft := NewFileTools(workspace)
	r := NewEmptyRegistry()
	ft.Register(r)
	ctx := context.Background()

	want := []string{"copy_file", "file_delete", "file_search", "list_directory", "move_file", "read_file", "write_file"}
	if strings.Join(r.Names(), ",") != strings.Join(want, ",") {
		t.Fatalf("Names() = %v", r.Names())
	}

	steps := []struct {
		tool, args, want string
	}{
		{"list_directory", `{}`, "No files found in directory ."},
		{"write_file", `{"file_path":"report.md","text":"# Report"}`, "File written successfully to report.md."},
		{"read_file", `{"file_path":"report.md"}`, "# Report"},
		{"copy_file", `{"source_path":"report.md","destination_path":"old.md"}`, "File copied successfully from report.md to old.md."},
		{"file_search", `{"pattern":"*.md"}`, "old.md\nreport.md"},
		{"move_file", `{"source_path":"old.md","destination_path":"archive/old.md"}`, "File moved successfully from old.md to archive/old.md."},
		{"file_delete", `{"file_path":"archive/old.md"}`, "File deleted successfully: archive/old.md."},
		{"list_directory", `{"dir_path":"."}`, "archive/\nreport.md"},
	}
	for _, s := range steps {
		got, err := r.Execute(ctx, s.tool, s.args)
		if err != nil {
			t.Fatalf("%s(%s): %v", s.tool, s.args, err)
		}
		if got != s.want {
			t.Errorf("%s(%s) = %q, want %q", s.tool, s.args, got, s.want)
		}
	}

	if _, err := r.Execute(ctx, "read_file", `{"file_path":"../../etc/passwd"}`); err == nil {
		t.Error("escape via tool should fail")
	}
}
