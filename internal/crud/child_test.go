package crud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forgekit/forge-backend/internal/domain"
	"github.com/forgekit/forge-backend/internal/schema"
)

func chatSchema() *schema.Schema {
	return &schema.Schema{
		Table: "chat",
		Fields: []schema.Field{
			{Name: "title", Kind: schema.KindString},
			{Name: "isPublic", Kind: schema.KindBool, Default: false},
		},
	}
}

func messageSchema() *schema.Schema {
	// chatId is required, like the child schemas in the catalog; the
	// factory injects it before validation.
	return &schema.Schema{
		Table: "message",
		Fields: []schema.Field{
			{Name: "chatId", Kind: schema.KindString},
			{Name: "text", Kind: schema.KindString},
		},
	}
}

type childFixture struct {
	*env
	chats    *Crud
	messages *ChildCrud
	owner    uuid.UUID
	chatID   uuid.UUID
}

func newChildFixture(t *testing.T) *childFixture {
	t.Helper()
	e := newEnv()
	f := &childFixture{
		env:   e,
		chats: New(chatSchema(), Options{Cascades: []Cascade{{Table: "message", ParentField: "chatId"}}}, e.deps()),
		messages: NewChild(messageSchema(), ChildOptions{
			ParentTable:     "chat",
			ParentField:     "chatId",
			PublicFlagField: "isPublic",
		}, e.deps()),
		owner: uuid.New(),
	}

	id, err := f.chats.Create(authed(f.owner), map[string]any{"title": "room"})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	f.chatID = id
	return f
}

func TestChildCrud_Create(t *testing.T) {
	f := newChildFixture(t)

	id, err := f.messages.Create(authed(f.owner), f.chatID, map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, _ := f.store.Get(context.Background(), "message", id)
	if doc.Fields["chatId"] != f.chatID.String() {
		t.Fatalf("expected parent reference set, got %v", doc.Fields["chatId"])
	}

	t.Run("required parent field passes validation without caller input", func(t *testing.T) {
		// chatId is required in the schema but never supplied by the
		// caller; the factory must satisfy it.
		if _, err := f.messages.Create(authed(f.owner), f.chatID, map[string]any{"text": "again"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	})

	t.Run("foreign parent", func(t *testing.T) {
		_, err := f.messages.Create(authed(uuid.New()), f.chatID, map[string]any{"text": "hi"})
		if !errors.Is(err, domain.ErrNotAuthorized) {
			t.Fatalf("expected NOT_AUTHORIZED, got %v", err)
		}
	})

	t.Run("missing parent", func(t *testing.T) {
		_, err := f.messages.Create(authed(f.owner), uuid.New(), map[string]any{"text": "hi"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("caller cannot forge the parent field", func(t *testing.T) {
		forged := uuid.New().String()
		id, err := f.messages.Create(authed(f.owner), f.chatID, map[string]any{"text": "hi", "chatId": forged})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		doc, _ := f.store.Get(context.Background(), "message", id)
		if doc.Fields["chatId"] != f.chatID.String() {
			t.Fatalf("expected the resolved parent, got %v", doc.Fields["chatId"])
		}
	})
}

func TestChildCrud_ReadAndUpdate(t *testing.T) {
	f := newChildFixture(t)
	ctx := authed(f.owner)

	id, _ := f.messages.Create(ctx, f.chatID, map[string]any{"text": "v1"})

	got, err := f.messages.Read(ctx, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil || got.Fields["text"] != "v1" {
		t.Fatalf("expected the message, got %+v", got)
	}

	t.Run("stranger read", func(t *testing.T) {
		_, err := f.messages.Read(authed(uuid.New()), id)
		if !errors.Is(err, domain.ErrNotAuthorized) {
			t.Fatalf("expected NOT_AUTHORIZED, got %v", err)
		}
	})

	t.Run("update authorizes against the parent", func(t *testing.T) {
		_, err := f.messages.Update(authed(uuid.New()), id, map[string]any{"text": "hacked"}, nil)
		if !errors.Is(err, domain.ErrNotAuthorized) {
			t.Fatalf("expected NOT_AUTHORIZED, got %v", err)
		}

		updated, err := f.messages.Update(ctx, id, map[string]any{"text": "v2"}, nil)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Fields["text"] != "v2" {
			t.Fatalf("expected v2, got %v", updated.Fields["text"])
		}
	})
}

func TestChildCrud_PublicVariants(t *testing.T) {
	f := newChildFixture(t)
	ctx := authed(f.owner)

	id, _ := f.messages.Create(ctx, f.chatID, map[string]any{"text": "hello"})

	t.Run("private parent reads as absent", func(t *testing.T) {
		_, err := f.messages.PublicRead(context.Background(), id)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
		_, err = f.messages.PublicList(context.Background(), f.chatID, ListRequest{})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("public parent opens anonymous reads", func(t *testing.T) {
		if _, err := f.chats.Update(ctx, f.chatID, map[string]any{"isPublic": true}, nil); err != nil {
			t.Fatalf("publish chat: %v", err)
		}

		got, err := f.messages.PublicRead(context.Background(), id)
		if err != nil {
			t.Fatalf("publicRead: %v", err)
		}
		if got == nil {
			t.Fatal("expected the message")
		}

		page, err := f.messages.PublicList(context.Background(), f.chatID, ListRequest{})
		if err != nil {
			t.Fatalf("publicList: %v", err)
		}
		if len(page.Page) != 1 {
			t.Fatalf("expected 1 message, got %d", len(page.Page))
		}
	})
}

func TestChildCrud_List_ScopedToParent(t *testing.T) {
	f := newChildFixture(t)
	ctx := authed(f.owner)

	other, err := f.chats.Create(ctx, map[string]any{"title": "second room"})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	f.now = f.now.Add(time.Second)
	_, _ = f.messages.Create(ctx, f.chatID, map[string]any{"text": "in first"})
	f.now = f.now.Add(time.Second)
	_, _ = f.messages.Create(ctx, other, map[string]any{"text": "in second"})

	page, err := f.messages.List(ctx, f.chatID, ListRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Page) != 1 || page.Page[0].Fields["text"] != "in first" {
		t.Fatalf("expected only the first chat's messages, got %d", len(page.Page))
	}
}

func TestChildCrud_ParentDeleteCascades(t *testing.T) {
	f := newChildFixture(t)
	ctx := authed(f.owner)

	for i := 0; i < 3; i++ {
		if _, err := f.messages.Create(ctx, f.chatID, map[string]any{"text": "m"}); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	if _, err := f.chats.Rm(ctx, f.chatID); err != nil {
		t.Fatalf("rm chat: %v", err)
	}

	left, _ := f.store.Find(context.Background(), "message", domain.Query{IncludeDeleted: true})
	if len(left) != 0 {
		t.Fatalf("expected messages hard-deleted with the chat, %d left", len(left))
	}
}

func TestChildCrud_Rm_SoftDeletedParentBlocksChildren(t *testing.T) {
	f := newChildFixture(t)
	ctx := authed(f.owner)

	id, _ := f.messages.Create(ctx, f.chatID, map[string]any{"text": "m"})

	// soft-delete the parent directly; children of a deleted parent are
	// unreachable
	doc, _ := f.store.Get(context.Background(), "chat", f.chatID)
	now := f.now
	doc.DeletedAt = &now
	if err := f.store.Update(context.Background(), "chat", doc); err != nil {
		t.Fatalf("update chat: %v", err)
	}

	_, err := f.messages.Read(ctx, id)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
