package statefile

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFile(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess != nil {
		t.Errorf("Load on missing file = %+v, want nil", sess)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "session.json")
	st, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := &Session{
		AccessToken:  "at-123",
		RefreshToken: "rt-456",
		LastLogin:    time.Date(2026, time.March, 3, 9, 10, 0, 0, time.UTC),
	}
	if err := st.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if !got.LastLogin.Equal(want.LastLogin) {
		t.Errorf("LastLogin = %v, want %v", got.LastLogin, want.LastLogin)
	}
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	st, _ := New(path)

	st.Save(&Session{AccessToken: "old"})
	st.Save(&Session{AccessToken: "new"})

	got, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want new", got.AccessToken)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	st, _ := New(path)
	st.Save(&Session{AccessToken: "x"})

	if err := st.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := st.Clear(); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
	sess, err := st.Load()
	if err != nil || sess != nil {
		t.Errorf("Load after Clear = (%+v, %v), want (nil, nil)", sess, err)
	}
}
