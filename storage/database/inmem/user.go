package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) &&
			!strings.Contains(usr.Username, s) &&
			!strings.Contains(usr.Email, s) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		found := false
		for _, r := range filter.Roles {
			if usr.Role == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.SchoolID != "" && usr.SchoolID != filter.SchoolID {
		return false
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

// compareUsers orders a and b on field, returning <0, 0 or >0.
func compareUsers(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return a.Role.PowerLevel() - b.Role.PowerLevel()
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	case "last_login":
		return compareTimes(a.LastLogin, b.LastLogin)
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if matchUser(*usr, filter) {
			users = append(users, *usr)
		}
	}

	ordering = append(append([]core.DBOrdering{}, ordering...), core.DBOrdering{Field: "created_at", Ascending: true})
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	var match func(usr *user.User) bool
	switch {
	case filter.Username != "":
		match = func(usr *user.User) bool { return usr.Username == filter.Username }
	case filter.Email != "":
		match = func(usr *user.User) bool { return usr.Email == filter.Email }
	case len(filter.UsernameOrEmail) > 0 && filter.UsernameOrEmail[0] != "":
		uname, email := filter.UsernameOrEmail[0], filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 && filter.UsernameOrEmail[1] != "" {
			email = filter.UsernameOrEmail[1]
		}
		match = func(usr *user.User) bool { return usr.Username == uname || usr.Email == email }
	default:
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.db.users {
		if match(usr) {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// the tier and the counters have their own operations
	usr.Tier = orig.Tier
	usr.Usage = orig.Usage
	usr.CreatedAt = orig.CreatedAt
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) SetSubscriptionTier(_ context.Context, id string, tier usage.Tier) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr, ok := repo.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.Tier = tier
	usr.UpdatedAt = time.Now().UTC()
	return *usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := repo.db.users[id]; !ok {
			return 0, user.ErrNotFound
		}
		unique[id] = struct{}{}
	}
	for id := range unique {
		delete(repo.db.users, id)
		for _, c := range repo.db.classes {
			if c.TeacherID == id {
				c.TeacherID = ""
			}
		}
	}
	return len(unique), nil
}

func (repo *userRepository) GetUsage(_ context.Context, principalID string) (usage.Counter, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	usr, ok := repo.db.users[principalID]
	if !ok {
		return usage.Counter{}, usage.ErrPrincipalNotFound
	}
	return usr.Usage, nil
}

func (repo *userRepository) ConsumeUsage(_ context.Context, principalID string, w usage.Window, lim usage.Limit) (usage.Counter, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr, ok := repo.db.users[principalID]
	if !ok {
		return usage.Counter{}, usage.ErrPrincipalNotFound
	}
	c := usr.Usage.Normalize(w)
	if lim.Exceeded(c) {
		return usage.Counter{}, usage.ErrLimitExceeded
	}
	usr.Usage = c.Increment(w)
	return usr.Usage, nil
}

func (repo *userRepository) ResetUsage(_ context.Context, principalID string, w usage.Window) (usage.Counter, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr, ok := repo.db.users[principalID]
	if !ok {
		return usage.Counter{}, usage.ErrPrincipalNotFound
	}
	usr.Usage = usage.Counter{Lifetime: usr.Usage.Lifetime, LastReset: w.Now}
	return usr.Usage, nil
}
