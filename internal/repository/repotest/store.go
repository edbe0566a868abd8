// Package repotest はテスト用のインメモリリポジトリ実装を提供する。
// PostgreSQLのスキーマと同じ一意制約とCASCADE削除を再現する。
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/tasktracker/internal/model"
	"github.com/hitoshi/tasktracker/internal/repository"
)

// Store は全テーブルを保持するインメモリストア。
type Store struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]model.User
	projects map[int64]model.Project
	tasks    map[int64]model.Task
	comments map[int64]model.Comment
	now      func() time.Time
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		users:    make(map[int64]model.User),
		projects: make(map[int64]model.Project),
		tasks:    make(map[int64]model.Task),
		comments: make(map[int64]model.Comment),
		now:      time.Now,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Users はUserRepositoryを返す。
func (s *Store) Users() *Users { return &Users{s} }

// Projects はProjectRepositoryを返す。
func (s *Store) Projects() *Projects { return &Projects{s} }

// Tasks はTaskRepositoryを返す。
func (s *Store) Tasks() *Tasks { return &Tasks{s} }

// Comments はCommentRepositoryを返す。
func (s *Store) Comments() *Comments { return &Comments{s} }

// Stats はStatsRepositoryを返す。
func (s *Store) Stats() *Stats { return &Stats{s} }

// CountTasks はタスクの総数を返す。
func (s *Store) CountTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func page[T any](items []T, p model.Page) []T {
	if p.Offset >= len(items) {
		return make([]T, 0)
	}
	items = items[p.Offset:]
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}

func notFound(entity string, id int64) error {
	return fmt.Errorf("%s not found: %d", entity, id)
}

// --- users ---

// Users はインメモリのUserRepository。
type Users struct{ s *Store }

func (r *Users) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *Users) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *Users) emailTaken(email string, except int64) bool {
	for _, u := range r.s.users {
		if u.Email == email && u.ID != except {
			return true
		}
	}
	return false
}

func (r *Users) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.emailTaken(user.Email, 0) {
		return model.NewEmailConflictError()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	user.ID = r.s.id()
	user.CreatedAt = r.s.now()
	r.s.users[user.ID] = *user
	return nil
}

func (r *Users) Update(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return notFound("user", user.ID)
	}
	if r.emailTaken(user.Email, user.ID) {
		return model.NewEmailConflictError()
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *Users) DeleteByID(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return notFound("user", id)
	}
	delete(r.s.users, id)
	for pid, p := range r.s.projects {
		if p.OwnerID == id {
			r.s.deleteProject(pid)
		}
	}
	for cid, c := range r.s.comments {
		if c.AuthorID == id {
			delete(r.s.comments, cid)
		}
	}
	for tid, t := range r.s.tasks {
		if t.AssigneeID != nil && *t.AssigneeID == id {
			t.AssigneeID = nil
			r.s.tasks[tid] = t
		}
	}
	return nil
}

// --- projects ---

// Projects はインメモリのProjectRepository。
type Projects struct{ s *Store }

func (r *Projects) FindByID(_ context.Context, id int64) (*model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *Projects) ListByOwner(_ context.Context, ownerID int64, p model.Page) ([]*model.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Project
	for _, proj := range r.s.projects {
		if proj.OwnerID == ownerID {
			out = append(out, &proj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, p), nil
}

func (r *Projects) Create(_ context.Context, p *model.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[p.OwnerID]; !ok {
		return fmt.Errorf("owner does not exist: %d", p.OwnerID)
	}
	p.ID = r.s.id()
	p.CreatedAt = r.s.now()
	r.s.projects[p.ID] = *p
	return nil
}

func (r *Projects) Update(_ context.Context, p *model.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[p.ID]; !ok {
		return notFound("project", p.ID)
	}
	r.s.projects[p.ID] = *p
	return nil
}

func (r *Projects) DeleteByID(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[id]; !ok {
		return notFound("project", id)
	}
	r.s.deleteProject(id)
	return nil
}

func (s *Store) deleteProject(id int64) {
	delete(s.projects, id)
	for tid, t := range s.tasks {
		if t.ProjectID == id {
			s.deleteTask(tid)
		}
	}
}

// --- tasks ---

// Tasks はインメモリのTaskRepository。
type Tasks struct{ s *Store }

func (r *Tasks) FindByID(_ context.Context, id int64) (*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *Tasks) ListByProject(_ context.Context, projectID int64, p model.Page) ([]*model.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Task
	for _, t := range r.s.tasks {
		if t.ProjectID == projectID {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, p), nil
}

func (r *Tasks) Create(_ context.Context, t *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[t.ProjectID]; !ok {
		return fmt.Errorf("project does not exist: %d", t.ProjectID)
	}
	if err := r.s.checkAssignee(t.AssigneeID); err != nil {
		return err
	}
	t.ID = r.s.id()
	t.CreatedAt = r.s.now()
	t.UpdatedAt = t.CreatedAt
	r.s.tasks[t.ID] = *t
	return nil
}

func (r *Tasks) Update(_ context.Context, t *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID]; !ok {
		return notFound("task", t.ID)
	}
	if err := r.s.checkAssignee(t.AssigneeID); err != nil {
		return err
	}
	t.UpdatedAt = r.s.now()
	r.s.tasks[t.ID] = *t
	return nil
}

// checkAssignee はtasks.assignee_idの外部キー制約を模す。
func (s *Store) checkAssignee(id *int64) error {
	if id == nil {
		return nil
	}
	if _, ok := s.users[*id]; !ok {
		return model.NewValidationError("assignee_id does not reference an existing user")
	}
	return nil
}

func (r *Tasks) DeleteByID(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[id]; !ok {
		return notFound("task", id)
	}
	r.s.deleteTask(id)
	return nil
}

func (s *Store) deleteTask(id int64) {
	delete(s.tasks, id)
	for cid, c := range s.comments {
		if c.TaskID == id {
			delete(s.comments, cid)
		}
	}
}

// --- comments ---

// Comments はインメモリのCommentRepository。
type Comments struct{ s *Store }

func (r *Comments) FindByID(_ context.Context, id int64) (*model.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *Comments) ListByTask(_ context.Context, taskID int64, p model.Page) ([]*model.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Comment
	for _, c := range r.s.comments {
		if c.TaskID == taskID {
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, p), nil
}

func (r *Comments) Create(_ context.Context, c *model.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[c.TaskID]; !ok {
		return fmt.Errorf("task does not exist: %d", c.TaskID)
	}
	c.ID = r.s.id()
	c.CreatedAt = r.s.now()
	r.s.comments[c.ID] = *c
	return nil
}

func (r *Comments) UpdateBody(_ context.Context, id int64, body string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[id]
	if !ok {
		return notFound("comment", id)
	}
	c.Body = body
	r.s.comments[id] = c
	return nil
}

func (r *Comments) DeleteByID(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.comments[id]; !ok {
		return notFound("comment", id)
	}
	delete(r.s.comments, id)
	return nil
}

// --- stats ---

// Stats はインメモリのStatsRepository。
type Stats struct{ s *Store }

func (r *Stats) Totals(_ context.Context) (*model.Stats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return &model.Stats{
		TotalUsers:    int64(len(r.s.users)),
		TotalProjects: int64(len(r.s.projects)),
		TotalTasks:    int64(len(r.s.tasks)),
		TotalComments: int64(len(r.s.comments)),
	}, nil
}

// compile-time interface check
var (
	_ repository.UserRepository    = (*Users)(nil)
	_ repository.ProjectRepository = (*Projects)(nil)
	_ repository.TaskRepository    = (*Tasks)(nil)
	_ repository.CommentRepository = (*Comments)(nil)
	_ repository.StatsRepository   = (*Stats)(nil)
)
