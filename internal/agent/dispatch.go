package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariahome/aria/internal/llm"
	"github.com/ariahome/aria/internal/music"
	"github.com/ariahome/aria/internal/tools"
)

// Category identifies which handler services a tool call. Every call
// falls into exactly one category, determined solely by its name.
type Category int

const (
	CategoryQueryTools Category = iota
	CategoryQueryFacts
	CategoryLearnFact
	CategoryMusic
	CategoryHost // generic host tools, including web_search
)

// CategoryOf maps a tool-call name to its category. Unrecognized names
// are host tools.
func CategoryOf(name string) Category {
	switch name {
	case tools.NameQueryTools:
		return CategoryQueryTools
	case tools.NameQueryFacts:
		return CategoryQueryFacts
	case tools.NameLearnFact:
		return CategoryLearnFact
	}
	if music.Handles(name) {
		return CategoryMusic
	}
	return CategoryHost
}

// Categorized is a batch of tool calls partitioned by category.
type Categorized struct {
	QueryTools []llm.ToolCall
	QueryFacts []llm.ToolCall
	LearnFact  []llm.ToolCall
	Music      []llm.ToolCall
	Host       []llm.ToolCall
}

// Categorize partitions calls completely and disjointly: every call
// lands in exactly one bucket.
func Categorize(calls []llm.ToolCall) Categorized {
	var out Categorized
	for _, call := range calls {
		switch CategoryOf(call.Function.Name) {
		case CategoryQueryTools:
			out.QueryTools = append(out.QueryTools, call)
		case CategoryQueryFacts:
			out.QueryFacts = append(out.QueryFacts, call)
		case CategoryLearnFact:
			out.LearnFact = append(out.LearnFact, call)
		case CategoryMusic:
			out.Music = append(out.Music, call)
		default:
			out.Host = append(out.Host, call)
		}
	}
	return out
}

// dispatch runs one tool call and returns its result. New schemas
// discovered by query_tools are merged into set by the caller via the
// returned slice.
func (a *Agent) dispatch(ctx context.Context, call llm.ToolCall, set *tools.Set) (tools.Result, []map[string]any) {
	name := call.Function.Name
	args := call.Args()

	switch CategoryOf(name) {
	case CategoryQueryTools:
		domain, _ := args["domain"].(string)
		schemas, err := a.manager.QueryTools(ctx, domain, set)
		if err != nil {
			return tools.Fail(err.Error()), nil
		}
		names := make([]string, 0, len(schemas))
		for _, schema := range schemas {
			names = append(names, tools.SchemaName(schema))
		}
		if domain != "" {
			a.progress(fmt.Sprintf("Discovered %d tools for %s", len(names), domain))
		} else {
			a.progress(fmt.Sprintf("Discovered %d tools", len(names)))
		}
		return tools.OK(map[string]any{"added": len(names), "tools": names}), schemas

	case CategoryQueryFacts:
		// The category argument is advisory; all facts come back.
		return tools.OK(a.store.All()), nil

	case CategoryLearnFact:
		key, _ := args["key"].(string)
		value, _ := args["value"].(string)
		key = strings.TrimSpace(key)
		if key == "" || strings.TrimSpace(value) == "" {
			return tools.Fail("learn_fact requires key and value"), nil
		}
		a.store.Add(key, value)
		a.progress("Learned fact: " + key)
		return tools.OK(map[string]any{"remembered": key}), nil

	case CategoryMusic:
		if a.music == nil {
			return tools.Fail("music control is not configured"), nil
		}
		return a.music.Execute(ctx, name, args), nil

	default:
		if name == tools.NameWebSearch {
			return a.webSearch(ctx, args), nil
		}
		return a.manager.ExecuteTool(ctx, name, args), nil
	}
}

func (a *Agent) webSearch(ctx context.Context, args map[string]any) tools.Result {
	if a.search == nil {
		return tools.Fail("web search is not configured")
	}
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return tools.Fail("query is required")
	}
	maxResults := 0
	if n, ok := args["max_results"].(float64); ok {
		maxResults = int(n)
	}
	depth, _ := args["search_depth"].(string)

	resp, err := a.search.Search(ctx, query, maxResults, depth)
	if err != nil {
		return tools.Fail(err.Error())
	}
	return tools.OK(resp)
}
