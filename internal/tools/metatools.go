package tools

// Meta-tool and fixed-block schemas in the OpenAI function-calling
// format. These are implemented inside the agent, not passed through to
// the smart-home host.

// Meta-tool and music function names, used by dispatch categorization.
const (
	NameQueryTools = "query_tools"
	NameQueryFacts = "query_facts"
	NameLearnFact  = "learn_fact"
	NameWebSearch  = "web_search"
)

// MusicToolNames are the function names of the music control block.
var MusicToolNames = []string{
	"play_music",
	"get_now_playing",
	"control_playback",
	"search_music",
	"transfer_music",
	"get_music_players",
}

// FunctionSchema builds one OpenAI-format tool schema. A nil params maps
// to an empty-object parameter schema.
func FunctionSchema(name, description string, params map[string]any) map[string]any {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        name,
			"description": description,
			"parameters":  params,
		},
	}
}

// MetaToolSchemas returns the always-present meta-tools: tool discovery,
// fact query, and fact storage.
func MetaToolSchemas() []map[string]any {
	return []map[string]any{
		FunctionSchema(NameQueryTools,
			"Discover additional smart-home tools. Call this when the current tools cannot handle the request. Optionally filter by domain, e.g. 'light' or 'climate'.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"domain": map[string]any{
						"type":        "string",
						"description": "Optional domain filter for the tool catalog",
					},
				},
			}),
		FunctionSchema(NameQueryFacts,
			"Retrieve remembered facts about the user and household.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category": map[string]any{
						"type":        "string",
						"description": "Optional category hint",
					},
				},
			}),
		FunctionSchema(NameLearnFact,
			"Remember a fact about the user or household for future conversations.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category": map[string]any{
						"type": "string",
						"enum": []string{"personal", "preference", "household", "schedule", "other"},
					},
					"key": map[string]any{
						"type":        "string",
						"description": "Short snake_case identifier for the fact",
					},
					"value": map[string]any{
						"type":        "string",
						"description": "The fact itself",
					},
				},
				"required": []string{"category", "key", "value"},
			}),
	}
}

// MusicSchemas returns the fixed music-control block.
func MusicSchemas() []map[string]any {
	playbackActions := []string{"pause", "resume", "next", "previous", "stop", "volume_up", "volume_down"}
	return []map[string]any{
		FunctionSchema("play_music",
			"Play music on a media player. Accepts an artist, track, album, or playlist description and an optional room.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"media_id": map[string]any{
						"type":        "string",
						"description": "What to play: artist, track, album, playlist, or free-text description",
					},
					"room": map[string]any{
						"type":        "string",
						"description": "Room or player name, e.g. 'kitchen'",
					},
				},
				"required": []string{"media_id"},
			}),
		FunctionSchema("get_now_playing",
			"Get what is currently playing and where.",
			nil),
		FunctionSchema("control_playback",
			"Control active playback: pause, resume, skip, or change volume.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type": "string",
						"enum": playbackActions,
					},
					"room": map[string]any{
						"type":        "string",
						"description": "Room to control; defaults to the active player",
					},
				},
				"required": []string{"action"},
			}),
		FunctionSchema("search_music",
			"Search the music library without starting playback.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
				"required": []string{"query"},
			}),
		FunctionSchema("transfer_music",
			"Move current playback to another room or player.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"room": map[string]any{
						"type":        "string",
						"description": "Destination room or player",
					},
				},
				"required": []string{"room"},
			}),
		FunctionSchema("get_music_players",
			"List available media players and their state.",
			nil),
	}
}

// WebSearchSchema returns the web-search tool schema.
func WebSearchSchema() map[string]any {
	return FunctionSchema(NameWebSearch,
		"Search the web for current information: news, weather context, facts you do not know.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Number of results, 1-10",
				},
				"search_depth": map[string]any{
					"type": "string",
					"enum": []string{"basic", "advanced"},
				},
			},
			"required": []string{"query"},
		})
}
