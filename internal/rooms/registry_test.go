package rooms

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	r, err := NewRegistry(dir, logger)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r, dir
}

func TestNewRegistry_EnsuresGeneralRoom(t *testing.T) {
	r, _ := newTestRegistry(t)
	room, ok := r.Get(GeneralRoomID)
	if !ok {
		t.Fatal("general room missing")
	}
	if room.Type != RoomOpen || room.Name != "General" {
		t.Errorf("general room = %+v", room)
	}
}

func TestCreate_DuplicateRejected(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Create("proj", "Project", RoomProject); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := r.Create("proj", "Again", RoomProject); !errors.Is(err, ErrRoomExists) {
		t.Errorf("duplicate create: err = %v, want ErrRoomExists", err)
	}
}

func TestCreate_GeneratesID(t *testing.T) {
	r, _ := newTestRegistry(t)
	room, err := r.Create("", "Anon", RoomDirect)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if room.ID == "" {
		t.Error("id not generated")
	}
}

func TestGetOrCreate(t *testing.T) {
	r, _ := newTestRegistry(t)
	first, err := r.GetOrCreate("proj", "Project", RoomProject)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := r.GetOrCreate("proj", "Ignored", RoomOpen)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Name != first.Name || second.Type != first.Type {
		t.Errorf("second call changed the room: %+v", second)
	}
}

func TestAddRemoveBot_Idempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Create("proj", "Project", RoomProject); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := r.AddBot("proj", "coder"); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	room, _ := r.Get("proj")
	if len(room.Bots) != 1 {
		t.Errorf("bots = %v, want one entry", room.Bots)
	}

	for i := 0; i < 2; i++ {
		if err := r.RemoveBot("proj", "coder"); err != nil {
			t.Fatalf("remove %d: %v", i, err)
		}
	}
	room, _ = r.Get("proj")
	if len(room.Bots) != 0 {
		t.Errorf("bots = %v, want empty", room.Bots)
	}

	if err := r.AddBot("missing", "coder"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("add to missing room: err = %v, want ErrNotFound", err)
	}
}

func TestBind_Rebind_Unbind(t *testing.T) {
	r, _ := newTestRegistry(t)
	if _, err := r.Create("a", "A", RoomProject); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("b", "B", RoomProject); err != nil {
		t.Fatal(err)
	}

	if err := r.Bind("telegram", "123", "a"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if id, ok := r.RoomForChannel("telegram", "123"); !ok || id != "a" {
		t.Errorf("resolve = (%q, %v)", id, ok)
	}

	// Same pair, same room: no duplicate member.
	if err := r.Bind("telegram", "123", "a"); err != nil {
		t.Fatalf("rebind same: %v", err)
	}
	room, _ := r.Get("a")
	if len(room.ChannelMembers) != 1 {
		t.Errorf("members = %v, want one", room.ChannelMembers)
	}

	// Rebinding to another room moves the pair.
	if err := r.Bind("telegram", "123", "b"); err != nil {
		t.Fatalf("rebind move: %v", err)
	}
	if id, _ := r.RoomForChannel("telegram", "123"); id != "b" {
		t.Errorf("resolve after move = %q", id)
	}
	if roomA, _ := r.Get("a"); len(roomA.ChannelMembers) != 0 {
		t.Errorf("old room kept the member: %v", roomA.ChannelMembers)
	}
	if roomB, _ := r.Get("b"); len(roomB.ChannelMembers) != 1 {
		t.Errorf("new room members = %v", roomB.ChannelMembers)
	}

	if err := r.Bind("telegram", "999", "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("bind to missing room: err = %v", err)
	}

	removed, err := r.Unbind("telegram", "123")
	if err != nil || !removed {
		t.Fatalf("unbind = (%v, %v)", removed, err)
	}
	if _, ok := r.RoomForChannel("telegram", "123"); ok {
		t.Error("binding survived unbind")
	}
	if removed, _ := r.Unbind("telegram", "123"); removed {
		t.Error("second unbind reported a removal")
	}
}

func TestPersistence_SurvivesReload(t *testing.T) {
	r, dir := newTestRegistry(t)
	if _, err := r.Create("proj", "Project", RoomProject); err != nil {
		t.Fatal(err)
	}
	if err := r.AddBot("proj", "coder"); err != nil {
		t.Fatal(err)
	}
	if err := r.Bind("whatsapp", "42", "proj"); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	reloaded, err := NewRegistry(dir, logger)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	room, ok := reloaded.Get("proj")
	if !ok {
		t.Fatal("room lost on reload")
	}
	if len(room.Bots) != 1 || room.Bots[0] != "coder" {
		t.Errorf("bots = %v", room.Bots)
	}
	if len(room.ChannelMembers) != 1 || room.ChannelMembers[0].ChatID != "42" {
		t.Errorf("members = %+v", room.ChannelMembers)
	}
	if id, ok := reloaded.RoomForChannel("whatsapp", "42"); !ok || id != "proj" {
		t.Errorf("binding after reload = (%q, %v)", id, ok)
	}
}

func TestDelete_DropsBindings(t *testing.T) {
	r, dir := newTestRegistry(t)
	if _, err := r.Create("proj", "Project", RoomProject); err != nil {
		t.Fatal(err)
	}
	if err := r.Bind("telegram", "1", "proj"); err != nil {
		t.Fatal(err)
	}

	if err := r.Delete("proj"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := r.Get("proj"); ok {
		t.Error("room still present")
	}
	if _, ok := r.RoomForChannel("telegram", "1"); ok {
		t.Error("binding survived room deletion")
	}
	// Deleting again is a no-op.
	if err := r.Delete("proj"); err != nil {
		t.Errorf("second delete: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	reloaded, err := NewRegistry(dir, logger)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := reloaded.Get("proj"); ok {
		t.Error("deleted room came back on reload")
	}
}

func TestSanitizeFilename(t *testing.T) {
	r, _ := newTestRegistry(t)
	// Ids with colons (binding-style ids) must map to safe filenames.
	if _, err := r.Create("telegram:123", "DM", RoomDirect); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := r.Get("telegram:123"); !ok {
		t.Error("room with colon id missing")
	}
}
