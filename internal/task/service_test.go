package task

import (
	"context"
	"strings"
	"testing"

	"github.com/hitoshi/tasktracker/internal/authz"
	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/repository/repotest"
	"github.com/hitoshi/tasktracker/internal/security"
)

type fixture struct {
	svc     *Service
	store   *repotest.Store
	alice   model.Identity
	bob     model.Identity
	project *model.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore()
	ctx := context.Background()

	a := &model.User{Email: "alice@example.com", PasswordHash: "x"}
	b := &model.User{Email: "bob@example.com", PasswordHash: "x"}
	for _, u := range []*model.User{a, b} {
		if err := store.Users().Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	p := &model.Project{Name: "p", OwnerID: a.ID}
	if err := store.Projects().Create(ctx, p); err != nil {
		t.Fatalf("create project: %v", err)
	}

	resolver := authz.NewResolver(authz.RepositoryFacts(store.Projects(), store.Tasks()))
	return &fixture{
		svc:     NewService(store.Tasks(), store.Comments(), resolver, security.NewContentSanitizer()),
		store:   store,
		alice:   model.IdentityOf(a),
		bob:     model.IdentityOf(b),
		project: p,
	}
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestParseInclude(t *testing.T) {
	tests := []struct {
		raw  string
		want Include
	}{
		{"", Include{}},
		{"project", Include{Project: true}},
		{"comments", Include{Comments: true}},
		{" Project , COMMENTS ", Include{Project: true, Comments: true}},
		{"owner,project", Include{Project: true}},
	}
	for _, tt := range tests {
		if got := ParseInclude(tt.raw); got != tt.want {
			t.Errorf("ParseInclude(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestService_Create_Defaults(t *testing.T) {
	f := newFixture(t)

	task, err := f.svc.Create(context.Background(), f.alice, f.project.ID, CreateInput{
		Title:                "write docs",
		EstimatedTimeMinutes: intPtr(30),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if task.Status != model.TaskStatusOpen || task.Priority != model.DefaultTaskPriority {
		t.Errorf("defaults = %q/%d", task.Status, task.Priority)
	}
	if task.EstimatedTimeMinutes == nil || *task.EstimatedTimeMinutes != 30 {
		t.Errorf("EstimatedTimeMinutes = %v", task.EstimatedTimeMinutes)
	}
	if task.ProjectID != f.project.ID {
		t.Errorf("ProjectID = %d", task.ProjectID)
	}
}

func TestService_Create_ForeignProject(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.bob, f.project.ID, CreateInput{Title: "x"})
	if !model.HasCode(err, model.ErrCodeProjectNotFound) {
		t.Errorf("expected PROJECT_NOT_FOUND, got %v", err)
	}
	if f.store.CountTasks() != 0 {
		t.Error("no task should be created")
	}
}

func TestService_Create_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.alice, f.project.ID, CreateInput{Title: "  "}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("empty title err = %v", err)
	}
	if _, err := f.svc.Create(ctx, f.alice, f.project.ID, CreateInput{Title: "t", EstimatedTimeMinutes: intPtr(-1)}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("negative estimate err = %v", err)
	}
	if _, err := f.svc.Create(ctx, f.alice, f.project.ID, CreateInput{Title: strings.Repeat("t", 256)}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("long title err = %v", err)
	}
	if f.store.CountTasks() != 0 {
		t.Errorf("CountTasks = %d, want 0", f.store.CountTasks())
	}
}

func TestService_UnknownAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unknown := int64(9999)

	if _, err := f.svc.Create(ctx, f.alice, f.project.ID, CreateInput{Title: "t", AssigneeID: &unknown}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("Create(unknown assignee) err = %v", err)
	}

	assignee := f.bob.ID
	task, err := f.svc.Create(ctx, f.alice, f.project.ID, CreateInput{Title: "t", AssigneeID: &assignee})
	if err != nil {
		t.Fatalf("Create(known assignee) error: %v", err)
	}
	if _, err := f.svc.Update(ctx, f.alice, task.ID, model.TaskPatch{AssigneeID: &unknown}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("Update(unknown assignee) err = %v", err)
	}
}

func TestService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, title := range []string{"a", "b"} {
		if _, err := f.svc.Create(ctx, f.alice, f.project.ID, CreateInput{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	tasks, err := f.svc.List(ctx, f.alice, f.project.ID, model.Page{Limit: 10})
	if err != nil || len(tasks) != 2 {
		t.Fatalf("List = %d tasks, %v", len(tasks), err)
	}
	if _, err := f.svc.List(ctx, f.bob, f.project.ID, model.Page{Limit: 10}); !model.HasCode(err, model.ErrCodeProjectNotFound) {
		t.Errorf("List(bob) err = %v", err)
	}
}

func TestService_Get_Include(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _ := f.svc.Create(ctx, f.alice, f.project.ID, CreateInput{Title: "t"})
	if err := f.store.Comments().Create(ctx, &model.Comment{TaskID: task.ID, AuthorID: f.alice.ID, Body: "hi"}); err != nil {
		t.Fatal(err)
	}

	plain, err := f.svc.Get(ctx, f.alice, task.ID, Include{})
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if plain.Project != nil || plain.Comments != nil {
		t.Errorf("relations should be omitted: %+v", plain)
	}

	full, err := f.svc.Get(ctx, f.alice, task.ID, Include{Project: true, Comments: true})
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if full.Project == nil || full.Project.ID != f.project.ID {
		t.Errorf("Project = %+v", full.Project)
	}
	if len(full.Comments) != 1 || full.Comments[0].Body != "hi" {
		t.Errorf("Comments = %+v", full.Comments)
	}

	if _, err := f.svc.Get(ctx, f.bob, task.ID, Include{}); !model.HasCode(err, model.ErrCodeTaskNotFound) {
		t.Errorf("Get(bob) err = %v", err)
	}
}

func TestService_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _ := f.svc.Create(ctx, f.alice, f.project.ID, CreateInput{Title: "t"})

	done := "done"
	prio := 1
	updated, err := f.svc.Update(ctx, f.alice, task.ID, model.TaskPatch{
		Status:      &done,
		Priority:    &prio,
		Description: strPtr("<i>details</i>"),
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Status != "done" || updated.Priority != 1 || updated.Title != "t" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Description == nil || *updated.Description != "details" {
		t.Errorf("Description = %v", updated.Description)
	}

	if _, err := f.svc.Update(ctx, f.bob, task.ID, model.TaskPatch{Status: &done}); !model.HasCode(err, model.ErrCodeTaskNotFound) {
		t.Errorf("Update(bob) err = %v", err)
	}
	if _, err := f.svc.Update(ctx, f.alice, task.ID, model.TaskPatch{Title: strPtr("")}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("Update(empty title) err = %v", err)
	}
	if _, err := f.svc.Update(ctx, f.alice, task.ID, model.TaskPatch{Title: strPtr(strings.Repeat("t", 256))}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("Update(long title) err = %v", err)
	}
	if _, err := f.svc.Update(ctx, f.alice, task.ID, model.TaskPatch{Status: strPtr(strings.Repeat("s", 33))}); !model.HasCode(err, model.ErrCodeValidation) {
		t.Errorf("Update(long status) err = %v", err)
	}
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _ := f.svc.Create(ctx, f.alice, f.project.ID, CreateInput{Title: "t"})

	if err := f.svc.Delete(ctx, f.bob, task.ID); !model.HasCode(err, model.ErrCodeTaskNotFound) {
		t.Errorf("Delete(bob) err = %v", err)
	}
	if err := f.svc.Delete(ctx, f.alice, task.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if f.store.CountTasks() != 0 {
		t.Error("task should be deleted")
	}
}
