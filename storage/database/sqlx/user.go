package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

const userColumns = `id, name, username, email, is_active, role, power_level, school_id, subscription_tier, ` +
	`daily_usage, monthly_usage, lifetime_usage, last_usage_reset, password_hash, created_at, updated_at, last_login`

var userOrderingFields = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"role":       "power_level",
	"is_active":  "is_active",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
}

type userRow struct {
	ID             string      `db:"id"`
	Name           string      `db:"name"`
	Username       null.String `db:"username"`
	Email          null.String `db:"email"`
	IsActive       bool        `db:"is_active"`
	Role           policy.Role `db:"role"`
	PowerLevel     int         `db:"power_level"`
	SchoolID       null.String `db:"school_id"`
	Tier           usage.Tier  `db:"subscription_tier"`
	DailyUsage     int         `db:"daily_usage"`
	MonthlyUsage   int         `db:"monthly_usage"`
	LifetimeUsage  int64       `db:"lifetime_usage"`
	LastUsageReset null.Time   `db:"last_usage_reset"`
	PasswordHash   null.Bytes  `db:"password_hash"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
	LastLogin      null.Time   `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:             usr.ID,
		Name:           usr.Name,
		Username:       null.NewString(usr.Username, usr.Username != ""),
		Email:          null.NewString(usr.Email, usr.Email != ""),
		IsActive:       usr.IsActive,
		Role:           usr.Role,
		PowerLevel:     usr.Role.PowerLevel(),
		SchoolID:       null.NewString(usr.SchoolID, usr.SchoolID != ""),
		Tier:           usr.Tier,
		DailyUsage:     usr.Usage.Daily,
		MonthlyUsage:   usr.Usage.Monthly,
		LifetimeUsage:  usr.Usage.Lifetime,
		LastUsageReset: null.NewTime(usr.Usage.LastReset.UTC(), !usr.Usage.LastReset.IsZero()),
		PasswordHash:   null.BytesFrom(usr.PasswordHash),
		CreatedAt:      usr.CreatedAt.UTC(),
		UpdatedAt:      usr.UpdatedAt.UTC(),
		LastLogin:      null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) user() user.User {
	usr := user.User{
		ID:       row.ID,
		Name:     row.Name,
		Username: row.Username.String,
		Email:    row.Email.String,
		IsActive: row.IsActive,
		Role:     row.Role,
		SchoolID: row.SchoolID.String,
		Tier:     row.Tier,
		Usage: usage.Counter{
			Daily:    row.DailyUsage,
			Monthly:  row.MonthlyUsage,
			Lifetime: row.LifetimeUsage,
		},
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastUsageReset.Valid {
		usr.Usage.LastReset = row.LastUsageReset.Time.UTC()
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

type userRepository struct {
	db core.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) one(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (user.User, error) {
	var rows []userRow
	if err := selectInto(ctx, exec, &rows, query, args...); err != nil {
		return user.User{}, err
	}
	if len(rows) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return rows[0].user(), nil
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	var matches []string
	var args []interface{}
	if username != "" {
		matches = append(matches, "username = ?")
		args = append(args, username)
	}
	if email != "" {
		matches = append(matches, "email = ?")
		args = append(args, email)
	}
	if len(matches) == 0 {
		return nil
	}
	conds := []string{"(" + matches[0]}
	if len(matches) == 2 {
		conds[0] += " OR " + matches[1]
	}
	conds[0] += ")"
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		conds = append(conds, "id NOT IN (?)")
		args = append(args, ids)
	}

	q, args, err := where(`SELECT `+userColumns+` FROM "user"`, conds, args, "LIMIT 1")
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}
	usr, err := repo.one(ctx, repo.db, q, args...)
	if err != nil {
		if err == user.ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	if username != "" && usr.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := toUserRow(usr)
	q := `INSERT INTO "user" (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + userColumns
	created, err := repo.one(ctx, repo.db, q,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.Role, row.PowerLevel, row.SchoolID, row.Tier,
		row.DailyUsage, row.MonthlyUsage, row.LifetimeUsage, row.LastUsageReset, row.PasswordHash,
		row.CreatedAt, row.UpdatedAt, row.LastLogin)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return created, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var conds []string
	var args []interface{}

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, "(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)")
			args = append(args, val, val, val)
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				roles = append(roles, string(r))
			}
			conds = append(conds, "role IN (?)")
			args = append(args, roles)
		}
		if filter.SchoolID != "" {
			if _, err := uuid.Parse(filter.SchoolID); err != nil {
				return []user.User{}, nil
			}
			conds = append(conds, "school_id = ?")
			args = append(args, filter.SchoolID)
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= ?")
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= ?")
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	q, args, err := where(`SELECT `+userColumns+` FROM "user"`, conds, args, orderBy(ordering, userOrderingFields, "created_at ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "building users query")
	}
	var rows []userRow
	if err = selectInto(ctx, repo.db, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var cond string
	var args []interface{}

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		cond, args = "id = $1", []interface{}{filter.ID}
	case filter.Username != "":
		cond, args = "username = $1", []interface{}{filter.Username}
	case filter.Email != "":
		cond, args = "email = $1", []interface{}{filter.Email}
	case filter.UsernameOrEmail != nil:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		cond, args = "(username = $1 OR email = $2)", []interface{}{uname, email}
	default:
		return user.User{}, user.ErrNotFound
	}

	usr, err := repo.one(ctx, repo.db, fmt.Sprintf(`SELECT %s FROM "user" WHERE %s LIMIT 1`, userColumns, cond), args...)
	if err != nil && err != user.ErrNotFound {
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return usr, err
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := toUserRow(usr)
	q := `UPDATE "user" SET
			name = $2, username = $3, email = $4, is_active = $5, role = $6, power_level = $7,
			school_id = $8, password_hash = $9, updated_at = $10, last_login = $11
		WHERE id = $1
		RETURNING ` + userColumns
	updated, err := repo.one(ctx, repo.db, q,
		row.ID, row.Name, row.Username, row.Email, row.IsActive, row.Role, row.PowerLevel,
		row.SchoolID, row.PasswordHash, row.UpdatedAt, row.LastLogin)
	if err != nil && err != user.ErrNotFound {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return updated, err
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

func (repo *userRepository) SetSubscriptionTier(ctx context.Context, id string, tier usage.Tier) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}
	q := `UPDATE "user" SET subscription_tier = $2, updated_at = $3 WHERE id = $1 RETURNING ` + userColumns
	usr, err := repo.one(ctx, repo.db, q, id, tier, time.Now().UTC())
	if err != nil && err != user.ErrNotFound {
		return user.User{}, errors.Wrap(err, "setting subscription tier")
	}
	return usr, err
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return 0, user.ErrNotFound
		}
		unique[id] = struct{}{}
	}
	idList := make([]string, 0, len(unique))
	for id := range unique {
		idList = append(idList, id)
	}

	q, args, err := where(`DELETE FROM "user"`, []string{"id IN (?)"}, []interface{}{idList})
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}

	var cnt int64
	err = core.RunInTx(ctx, repo.db, func(tx core.DBExecutor) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return errors.Wrap(err, "deleting users")
		}
		if cnt, err = res.RowsAffected(); err != nil {
			return errors.Wrap(err, "counting deleted users")
		}
		if int(cnt) != len(idList) {
			return user.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(cnt), nil
}
