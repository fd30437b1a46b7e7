// Package rooms keeps the named-room registry and its channel bindings.
// Each room persists as one JSON document; the channel index lives in
// channel_mappings.json beside them.
package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// RoomType classifies what a room is for.
type RoomType string

const (
	RoomOpen         RoomType = "open"
	RoomProject      RoomType = "project"
	RoomDirect       RoomType = "direct"
	RoomCoordination RoomType = "coordination"
)

// GeneralRoomID is the always-present open room.
const GeneralRoomID = "general"

// ErrRoomExists is returned by Create on a duplicate id.
var ErrRoomExists = errors.New("room already exists")

// ChannelMember is one external chat bound into a room.
type ChannelMember struct {
	Channel  string    `json:"channel"`
	ChatID   string    `json:"chat_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Room is a persistent named locus of conversation.
type Room struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           RoomType        `json:"type"`
	Description    string          `json:"description,omitempty"`
	Bots           []string        `json:"bots"`
	ChannelMembers []ChannelMember `json:"channel_members"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

const mappingsFile = "channel_mappings.json"

// Registry owns every room plus the (channel, chat id) -> room index.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	bindings map[string]string // "<channel>:<chat_id>" -> room id
	dir      string
	logger   *slog.Logger
}

// NewRegistry loads all rooms under dir and ensures the general room exists.
func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		rooms:    make(map[string]*Room),
		bindings: make(map[string]string),
		dir:      dir,
		logger:   logger,
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("rooms dir: %w", err)
	}
	r.loadAll()
	if _, ok := r.Get(GeneralRoomID); !ok {
		if _, err := r.Create(GeneralRoomID, "General", RoomOpen); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func bindingKey(channel, chatID string) string {
	return channel + ":" + chatID
}

// Create registers a new room. Duplicate ids are rejected.
func (r *Registry) Create(id, name string, roomType RoomType) (Room, error) {
	if id == "" {
		id = store.GenNewID()
	}
	r.mu.Lock()
	if _, ok := r.rooms[id]; ok {
		r.mu.Unlock()
		return Room{}, fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	now := time.Now()
	room := &Room{
		ID:        id,
		Name:      name,
		Type:      roomType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.rooms[id] = room
	snapshot := *room
	r.mu.Unlock()

	if err := r.saveRoom(snapshot); err != nil {
		return Room{}, err
	}
	return snapshot, nil
}

// GetOrCreate returns the room if present, creating it otherwise.
func (r *Registry) GetOrCreate(id, name string, roomType RoomType) (Room, error) {
	if room, ok := r.Get(id); ok {
		return room, nil
	}
	room, err := r.Create(id, name, roomType)
	if errors.Is(err, ErrRoomExists) {
		if existing, ok := r.Get(id); ok {
			return existing, nil
		}
	}
	return room, err
}

// Get returns a copy of the room.
func (r *Registry) Get(id string) (Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	if !ok {
		return Room{}, false
	}
	return copyRoom(room), true
}

// List returns every room, unordered.
func (r *Registry) List() []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, copyRoom(room))
	}
	return out
}

// Delete removes the room, its file, and every binding pointing at it.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	_, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.rooms, id)
	for key, roomID := range r.bindings {
		if roomID == id {
			delete(r.bindings, key)
		}
	}
	r.mu.Unlock()

	path := filepath.Join(r.dir, sanitizeFilename(id)+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete room: %w", err)
	}
	return r.saveMappings()
}

// AddBot adds a bot participant. Idempotent.
func (r *Registry) AddBot(roomID, botID string) error {
	return r.mutate(roomID, func(room *Room) bool {
		for _, b := range room.Bots {
			if b == botID {
				return false
			}
		}
		room.Bots = append(room.Bots, botID)
		return true
	})
}

// RemoveBot removes a bot participant. Idempotent.
func (r *Registry) RemoveBot(roomID, botID string) error {
	return r.mutate(roomID, func(room *Room) bool {
		for i, b := range room.Bots {
			if b == botID {
				room.Bots = append(room.Bots[:i], room.Bots[i+1:]...)
				return true
			}
		}
		return false
	})
}

// Bind maps a (channel, chat id) pair to the room. Binding the same pair to
// the same room twice is a no-op; a pair already bound elsewhere moves.
func (r *Registry) Bind(channel, chatID, roomID string) error {
	key := bindingKey(channel, chatID)

	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("bind: room %s: %w", roomID, store.ErrNotFound)
	}
	if prev, bound := r.bindings[key]; bound && prev == roomID {
		r.mu.Unlock()
		return nil
	} else if bound {
		if prevRoom, ok := r.rooms[prev]; ok {
			removeChannelMember(prevRoom, channel, chatID)
		}
	}
	r.bindings[key] = roomID
	room.ChannelMembers = append(room.ChannelMembers, ChannelMember{
		Channel:  channel,
		ChatID:   chatID,
		JoinedAt: time.Now(),
	})
	room.UpdatedAt = time.Now()
	snapshot := copyRoom(room)
	r.mu.Unlock()

	if err := r.saveRoom(snapshot); err != nil {
		return err
	}
	return r.saveMappings()
}

// Unbind removes a (channel, chat id) binding. Returns false without side
// effects when the pair was not bound.
func (r *Registry) Unbind(channel, chatID string) (bool, error) {
	key := bindingKey(channel, chatID)

	r.mu.Lock()
	roomID, ok := r.bindings[key]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	delete(r.bindings, key)
	var snapshot Room
	var haveRoom bool
	if room, ok := r.rooms[roomID]; ok {
		removeChannelMember(room, channel, chatID)
		room.UpdatedAt = time.Now()
		snapshot = copyRoom(room)
		haveRoom = true
	}
	r.mu.Unlock()

	if haveRoom {
		if err := r.saveRoom(snapshot); err != nil {
			return true, err
		}
	}
	return true, r.saveMappings()
}

// RoomForChannel resolves a (channel, chat id) pair to its room id.
func (r *Registry) RoomForChannel(channel, chatID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bindings[bindingKey(channel, chatID)]
	return id, ok
}

// mutate applies fn to a room under the lock and persists when fn reports
// a change.
func (r *Registry) mutate(roomID string, fn func(*Room) bool) error {
	r.mu.Lock()
	room, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("room %s: %w", roomID, store.ErrNotFound)
	}
	changed := fn(room)
	if changed {
		room.UpdatedAt = time.Now()
	}
	snapshot := copyRoom(room)
	r.mu.Unlock()

	if !changed {
		return nil
	}
	return r.saveRoom(snapshot)
}

func removeChannelMember(room *Room, channel, chatID string) {
	for i, m := range room.ChannelMembers {
		if m.Channel == channel && m.ChatID == chatID {
			room.ChannelMembers = append(room.ChannelMembers[:i], room.ChannelMembers[i+1:]...)
			return
		}
	}
}

func copyRoom(room *Room) Room {
	out := *room
	out.Bots = append([]string(nil), room.Bots...)
	out.ChannelMembers = append([]ChannelMember(nil), room.ChannelMembers...)
	return out
}

// saveRoom writes one room document atomically.
func (r *Registry) saveRoom(room Room) error {
	data, err := json.MarshalIndent(room, "", "  ")
	if err != nil {
		return err
	}
	filename := sanitizeFilename(room.ID)
	if filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		return os.ErrInvalid
	}
	return atomicWrite(r.dir, filename+".json", data)
}

// saveMappings writes the channel index.
func (r *Registry) saveMappings() error {
	r.mu.RLock()
	snapshot := make(map[string]string, len(r.bindings))
	for k, v := range r.bindings {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(r.dir, mappingsFile, data)
}

func atomicWrite(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "room-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func (r *Registry) loadAll() {
	files, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, f.Name()))
		if err != nil {
			continue
		}
		if f.Name() == mappingsFile {
			if err := json.Unmarshal(data, &r.bindings); err != nil {
				r.logger.Warn("channel mappings unreadable, starting empty", "error", err)
				r.bindings = make(map[string]string)
			}
			continue
		}
		var room Room
		if err := json.Unmarshal(data, &room); err != nil || room.ID == "" {
			r.logger.Warn("skipping unreadable room file", "file", f.Name())
			continue
		}
		r.rooms[room.ID] = &room
	}
}

func sanitizeFilename(id string) string {
	return strings.ReplaceAll(id, ":", "_")
}
