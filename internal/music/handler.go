// Package music implements the music-control tool block on top of a
// Music Assistant-equipped Home Assistant instance.
package music

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ariahome/aria/internal/homeassistant"
	"github.com/ariahome/aria/internal/tools"
)

// Player is one cached media_player entity.
type Player struct {
	EntityID string
	Name     string
	State    string
	Title    string
	Artist   string
}

// Handler executes the music tool block against Home Assistant. It keeps
// a cache of media players refreshed from the state stream so tool calls
// do not need a full state dump per request.
type Handler struct {
	client *homeassistant.Client
	logger *slog.Logger

	mu      sync.Mutex
	players map[string]Player // keyed by entity ID
}

// NewHandler creates a music handler over the given client.
func NewHandler(client *homeassistant.Client, logger *slog.Logger) *Handler {
	return &Handler{
		client:  client,
		logger:  logger.With("component", "music"),
		players: make(map[string]Player),
	}
}

// RefreshPlayers rebuilds the player cache from a full state dump.
func (h *Handler) RefreshPlayers(ctx context.Context) error {
	states, err := h.client.GetStates(ctx)
	if err != nil {
		return fmt.Errorf("refreshing players: %w", err)
	}

	fresh := make(map[string]Player)
	for _, s := range states {
		if s.Domain() != "media_player" {
			continue
		}
		fresh[s.EntityID] = playerFromState(s)
	}

	h.mu.Lock()
	h.players = fresh
	h.mu.Unlock()
	h.logger.Debug("player cache refreshed", "players", len(fresh))
	return nil
}

// OnStateChange updates the cache from one state_changed event. Wire
// this to a homeassistant.Watcher.
func (h *Handler) OnStateChange(change homeassistant.StateChange) {
	if !strings.HasPrefix(change.EntityID, "media_player.") {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if change.NewState == nil {
		delete(h.players, change.EntityID)
		return
	}
	h.players[change.EntityID] = playerFromState(*change.NewState)
}

func playerFromState(s homeassistant.State) Player {
	title, _ := s.Attributes["media_title"].(string)
	artist, _ := s.Attributes["media_artist"].(string)
	return Player{
		EntityID: s.EntityID,
		Name:     s.FriendlyName(),
		State:    s.State,
		Title:    title,
		Artist:   artist,
	}
}

// Handles reports whether name belongs to the music tool block.
func Handles(name string) bool {
	for _, n := range tools.MusicToolNames {
		if n == name {
			return true
		}
	}
	return false
}

// Execute runs one music tool call. Failures fold into the result.
func (h *Handler) Execute(ctx context.Context, name string, args map[string]any) tools.Result {
	switch name {
	case "play_music":
		return h.playMusic(ctx, args)
	case "get_now_playing":
		return h.nowPlaying()
	case "control_playback":
		return h.controlPlayback(ctx, args)
	case "search_music":
		return h.searchMusic(ctx, args)
	case "transfer_music":
		return h.transferMusic(ctx, args)
	case "get_music_players":
		return h.listPlayers()
	default:
		return tools.Failf("unknown music tool %q", name)
	}
}

// resolvePlayer picks a target entity: the named room if given, else the
// currently playing player, else any known player.
func (h *Handler) resolvePlayer(room string) (Player, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.players) == 0 {
		return Player{}, fmt.Errorf("no media players available")
	}

	byName := make(map[string]Player, len(h.players))
	names := make([]string, 0, len(h.players))
	for _, p := range h.players {
		byName[p.Name] = p
		names = append(names, p.Name)
	}
	sort.Strings(names)

	if room != "" {
		matched, ok := ResolveRoom(room, names)
		if !ok {
			return Player{}, fmt.Errorf("no player matches room %q", room)
		}
		return byName[matched], nil
	}
	for _, name := range names {
		if byName[name].State == "playing" {
			return byName[name], nil
		}
	}
	return byName[names[0]], nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func (h *Handler) playMusic(ctx context.Context, args map[string]any) tools.Result {
	mediaID := stringArg(args, "media_id")
	if mediaID == "" {
		return tools.Fail("media_id is required")
	}
	player, err := h.resolvePlayer(stringArg(args, "room"))
	if err != nil {
		return tools.Fail(err.Error())
	}
	err = h.client.CallService(ctx, "music_assistant", "play_media", map[string]any{
		"entity_id": player.EntityID,
		"media_id":  mediaID,
	})
	if err != nil {
		return tools.Failf("starting playback: %v", err)
	}
	return tools.OK(map[string]any{"playing": mediaID, "player": player.Name})
}

func (h *Handler) nowPlaying() tools.Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	var playing []map[string]any
	for _, p := range h.players {
		if p.State != "playing" {
			continue
		}
		playing = append(playing, map[string]any{
			"player": p.Name,
			"title":  p.Title,
			"artist": p.Artist,
		})
	}
	if len(playing) == 0 {
		return tools.OK(map[string]any{"playing": false})
	}
	return tools.OK(map[string]any{"playing": true, "players": playing})
}

var playbackServices = map[string]string{
	"pause":       "media_pause",
	"resume":      "media_play",
	"next":        "media_next_track",
	"previous":    "media_previous_track",
	"stop":        "media_stop",
	"volume_up":   "volume_up",
	"volume_down": "volume_down",
}

func (h *Handler) controlPlayback(ctx context.Context, args map[string]any) tools.Result {
	action := stringArg(args, "action")
	service, ok := playbackServices[action]
	if !ok {
		return tools.Failf("unknown playback action %q", action)
	}
	player, err := h.resolvePlayer(stringArg(args, "room"))
	if err != nil {
		return tools.Fail(err.Error())
	}
	err = h.client.CallService(ctx, "media_player", service, map[string]any{
		"entity_id": player.EntityID,
	})
	if err != nil {
		return tools.Failf("playback control: %v", err)
	}
	return tools.OK(map[string]any{"action": action, "player": player.Name})
}

func (h *Handler) searchMusic(ctx context.Context, args map[string]any) tools.Result {
	query := stringArg(args, "query")
	if query == "" {
		return tools.Fail("query is required")
	}
	resp, err := h.client.CallServiceWithResponse(ctx, "music_assistant", "search", map[string]any{
		"name":  query,
		"limit": 5,
	})
	if err != nil {
		return tools.Failf("music search: %v", err)
	}
	return tools.OK(resp)
}

func (h *Handler) transferMusic(ctx context.Context, args map[string]any) tools.Result {
	room := stringArg(args, "room")
	if room == "" {
		return tools.Fail("room is required")
	}
	target, err := h.resolvePlayer(room)
	if err != nil {
		return tools.Fail(err.Error())
	}
	source, err := h.resolvePlayer("")
	if err != nil {
		return tools.Fail(err.Error())
	}
	if source.State != "playing" {
		return tools.Fail("nothing is playing to transfer")
	}
	if source.EntityID == target.EntityID {
		return tools.OK(map[string]any{"player": target.Name, "note": "already playing there"})
	}
	err = h.client.CallService(ctx, "music_assistant", "transfer_queue", map[string]any{
		"entity_id":     target.EntityID,
		"source_player": source.EntityID,
	})
	if err != nil {
		return tools.Failf("transferring playback: %v", err)
	}
	return tools.OK(map[string]any{"from": source.Name, "to": target.Name})
}

func (h *Handler) listPlayers() tools.Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	players := make([]map[string]any, 0, len(h.players))
	names := make([]string, 0, len(h.players))
	for _, p := range h.players {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	byName := make(map[string]Player, len(h.players))
	for _, p := range h.players {
		byName[p.Name] = p
	}
	for _, name := range names {
		p := byName[name]
		players = append(players, map[string]any{
			"player": p.Name,
			"state":  p.State,
		})
	}
	return tools.OK(map[string]any{"players": players})
}
