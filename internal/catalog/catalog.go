// Package catalog declares the document tables of the demo deployment
// and wires a factory for each one into the endpoint registry. Adding a
// table is a schema descriptor plus one factory call; no handler code.
package catalog

import (
	"time"

	"github.com/forgekit/forge-backend/internal/config"
	"github.com/forgekit/forge-backend/internal/crud"
	"github.com/forgekit/forge-backend/internal/schema"
)

// movieTTL is how long a cached movie entry stays fresh.
const movieTTL = 7 * 24 * time.Hour

func blogSchema() *schema.Schema {
	return &schema.Schema{
		Table:       "blog",
		SearchField: "title",
		Fields: []schema.Field{
			{Name: "title", Kind: schema.KindString},
			{Name: "content", Kind: schema.KindString, Optional: true},
			{Name: "category", Kind: schema.KindEnum, Default: "general", Enum: []string{"general", "tech", "life"}},
			{Name: "published", Kind: schema.KindBool, Default: false},
			{Name: "tags", Kind: schema.KindArray, Optional: true, Elem: &schema.Field{Kind: schema.KindString}},
			{Name: "cover", Kind: schema.KindFile, Optional: true},
			{Name: "attachments", Kind: schema.KindArray, Optional: true, Elem: &schema.Field{Kind: schema.KindFile}},
		},
	}
}

func wikiSchema() *schema.Schema {
	return &schema.Schema{
		Table:       "wiki",
		SearchField: "title",
		Fields: []schema.Field{
			{Name: "title", Kind: schema.KindString},
			{Name: "slug", Kind: schema.KindString, Optional: true},
			{Name: "content", Kind: schema.KindString, Optional: true},
			{Name: "pinned", Kind: schema.KindBool, Default: false},
			{Name: "diagram", Kind: schema.KindFile, Optional: true},
		},
	}
}

func projectSchema() *schema.Schema {
	return &schema.Schema{
		Table:       "project",
		SearchField: "name",
		Fields: []schema.Field{
			{Name: "name", Kind: schema.KindString},
			{Name: "description", Kind: schema.KindString, Optional: true},
			{Name: "status", Kind: schema.KindEnum, Default: "active", Enum: []string{"active", "paused", "archived"}},
		},
	}
}

func taskSchema() *schema.Schema {
	return &schema.Schema{
		Table: "task",
		Fields: []schema.Field{
			{Name: "projectId", Kind: schema.KindString},
			{Name: "title", Kind: schema.KindString},
			{Name: "done", Kind: schema.KindBool, Default: false},
			{Name: "priority", Kind: schema.KindEnum, Default: "normal", Enum: []string{"low", "normal", "high"}},
		},
	}
}

func chatSchema() *schema.Schema {
	return &schema.Schema{
		Table:       "chat",
		SearchField: "name",
		Fields: []schema.Field{
			{Name: "name", Kind: schema.KindString},
			{Name: "isPublic", Kind: schema.KindBool, Default: false},
		},
	}
}

func messageSchema() *schema.Schema {
	return &schema.Schema{
		Table: "message",
		Fields: []schema.Field{
			{Name: "chatId", Kind: schema.KindString},
			{Name: "text", Kind: schema.KindString},
			{Name: "attachments", Kind: schema.KindArray, Optional: true, Elem: &schema.Field{Kind: schema.KindFile}},
		},
	}
}

func movieSchema() *schema.Schema {
	return &schema.Schema{
		Table:       "movie",
		SearchField: "title",
		Fields: []schema.Field{
			{Name: "tmdbId", Kind: schema.KindString},
			{Name: "title", Kind: schema.KindString},
			{Name: "rating", Kind: schema.KindNumber, Optional: true},
			{Name: "genres", Kind: schema.KindArray, Optional: true, Elem: &schema.Field{Kind: schema.KindString}},
			{Name: "details", Kind: schema.KindObject, Optional: true, Children: []schema.Field{
				{Name: "runtime", Kind: schema.KindNumber, Optional: true},
				{Name: "year", Kind: schema.KindNumber, Optional: true},
			}},
		},
	}
}

func profileSchema() *schema.Schema {
	return &schema.Schema{
		Table: "profile",
		Fields: []schema.Field{
			{Name: "displayName", Kind: schema.KindString},
			{Name: "bio", Kind: schema.KindString, Optional: true},
			{Name: "avatar", Kind: schema.KindFile, Optional: true},
		},
	}
}

// Schemas returns every table descriptor, keyed by table name. The
// blob sweeper walks these to find live file references.
func Schemas() map[string]*schema.Schema {
	out := map[string]*schema.Schema{}
	for _, s := range []*schema.Schema{
		blogSchema(), wikiSchema(), projectSchema(), taskSchema(),
		chatSchema(), messageSchema(), movieSchema(), profileSchema(),
	} {
		out[s.Table] = s
	}
	return out
}

// Build wires a factory per table and registers all bundles.
func Build(limits config.LimitsConfig, deps crud.Deps) (*crud.Registry, error) {
	throttled := crud.Options{
		MaxWritesPerWindow: limits.MaxWritesPerWindow,
		RateWindow:         limits.Window,
	}

	reg := crud.NewRegistry()
	register := func(table string, b crud.Bundle, err *error) {
		if *err != nil {
			return
		}
		*err = reg.Register(table, b)
	}

	var err error

	blog := crud.New(blogSchema(), throttled, deps)
	register("blog", blog.Bundle(), &err)

	wiki := crud.NewOrg(wikiSchema(), crud.Options{}, deps)
	register("wiki", wiki.Bundle(), &err)

	projectOpts := throttled
	projectOpts.Cascades = []crud.Cascade{{Table: "task", ParentField: "projectId"}}
	project := crud.NewOrg(projectSchema(), projectOpts, deps)
	register("project", project.Bundle(), &err)

	task := crud.NewChild(taskSchema(), crud.ChildOptions{
		Options:     throttled,
		ParentTable: "project",
		ParentField: "projectId",
	}, deps)
	register("task", task.Bundle(), &err)

	chatOpts := throttled
	chatOpts.Cascades = []crud.Cascade{{Table: "message", ParentField: "chatId"}}
	chat := crud.New(chatSchema(), chatOpts, deps)
	register("chat", chat.Bundle(), &err)

	message := crud.NewChild(messageSchema(), crud.ChildOptions{
		Options:         throttled,
		ParentTable:     "chat",
		ParentField:     "chatId",
		PublicFlagField: "isPublic",
	}, deps)
	register("message", message.Bundle(), &err)

	movie := crud.NewCache(movieSchema(), crud.CacheOptions{
		KeyField: "tmdbId",
		TTL:      movieTTL,
	}, deps)
	register("movie", movie.Bundle(), &err)

	profile := crud.NewSingleton(profileSchema(), deps)
	register("profile", profile.Bundle(), &err)

	if err != nil {
		return nil, err
	}
	return reg, nil
}

// CacheTables returns the cache factory instances for maintenance jobs,
// keyed by table name.
func CacheTables(deps crud.Deps) map[string]*crud.CacheCrud {
	return map[string]*crud.CacheCrud{
		"movie": crud.NewCache(movieSchema(), crud.CacheOptions{
			KeyField: "tmdbId",
			TTL:      movieTTL,
		}, deps),
	}
}
