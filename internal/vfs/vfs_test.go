package vfs_test

import (
	"testing"

	"qljsconfig/internal/vfs"
)

func TestFakeCreateReadRemoveRename(t *testing.T) {
	fsys := vfs.NewFake()

	if err := vfs.CreateFile(fsys, "/project/quick-lint-js.config", []byte(`{"globals":{"x":true}}`)); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	data, err := fsys.ReadFile("/project/quick-lint-js.config")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"globals":{"x":true}}` {
		t.Fatalf("unexpected contents: %s", data)
	}

	if err := vfs.Rename(fsys, "/project/quick-lint-js.config", "/project/moved.config"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := fsys.ReadFile("/project/quick-lint-js.config"); err == nil {
		t.Fatalf("expected read of renamed-away path to fail")
	}
	if _, err := fsys.ReadFile("/project/moved.config"); err != nil {
		t.Fatalf("ReadFile after rename: %v", err)
	}

	if err := vfs.Remove(fsys, "/project/moved.config"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := fsys.ReadFile("/project/moved.config"); err == nil {
		t.Fatalf("expected read after remove to fail")
	}
}

func TestFakeLstatIfPossibleReportsNoSymlink(t *testing.T) {
	fsys := vfs.NewFake()
	if err := vfs.CreateFile(fsys, "/a/file", []byte("x")); err != nil {
		t.Fatal(err)
	}
	_, followed, err := fsys.LstatIfPossible("/a/file")
	if err != nil {
		t.Fatalf("LstatIfPossible: %v", err)
	}
	if followed {
		t.Fatalf("fake filesystem should never report a followed symlink")
	}
}
