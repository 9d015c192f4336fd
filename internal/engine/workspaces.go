package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/engine/auth"
	"trackline/internal/events"
	"trackline/internal/repo"
)

type UserCreateOptions struct {
	Username    string
	DisplayName string
	Email       string
	Roles       []string
}

// Bootstrap creates the first administrator. It fails once any user exists.
func (e Engine) Bootstrap(ctx context.Context, username string) (domain.User, error) {
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if len(users) > 0 {
		return domain.User{}, InvalidTransitionError{Entity: "user", Reason: "already bootstrapped"}
	}
	return e.insertUser(ctx, domain.Principal{}, UserCreateOptions{Username: username, Roles: []string{domain.RoleAdmin}})
}

// CreateUser registers a user. Admins only.
func (e Engine) CreateUser(ctx context.Context, p domain.Principal, opts UserCreateOptions) (domain.User, error) {
	if !p.HasRole(domain.RoleAdmin) {
		return domain.User{}, auth.PermissionDeniedError{Kind: "user"}
	}
	return e.insertUser(ctx, p, opts)
}

func (e Engine) insertUser(ctx context.Context, p domain.Principal, opts UserCreateOptions) (domain.User, error) {
	u := domain.User{
		ID:          uuid.NewString(),
		Username:    strings.TrimSpace(opts.Username),
		DisplayName: strings.TrimSpace(opts.DisplayName),
		Email:       strings.TrimSpace(opts.Email),
		Roles:       opts.Roles,
		CreatedAt:   e.stamp(),
	}
	if u.Username == "" {
		return u, invalid("username", "required")
	}
	if _, err := e.Repo.GetUserByUsername(ctx, u.Username); err == nil {
		return u, invalid("username", fmt.Sprintf("%q is taken", u.Username))
	} else if !errors.Is(err, repo.ErrNotFound) {
		return u, err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: "user.created", EntityKind: events.KindUser, EntityID: u.ID, ActorID: p.UserID,
			Payload: events.Payload{"username": u.Username, "roles": u.Roles},
		})
	})
	return u, err
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx)
}

// GrantRole adds a global role. Admins only.
func (e Engine) GrantRole(ctx context.Context, p domain.Principal, userID, role string) error {
	return e.changeRole(ctx, p, userID, role, true)
}

func (e Engine) RevokeRole(ctx context.Context, p domain.Principal, userID, role string) error {
	return e.changeRole(ctx, p, userID, role, false)
}

func (e Engine) changeRole(ctx context.Context, p domain.Principal, userID, role string, grant bool) error {
	if !p.HasRole(domain.RoleAdmin) {
		return auth.PermissionDeniedError{Kind: "user", ID: userID}
	}
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return invalid("role", "required")
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return err
	}
	typ := "user.role_granted"
	if !grant {
		typ = "user.role_revoked"
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if grant {
			err = e.Repo.GrantRole(ctx, tx, userID, role)
		} else {
			err = e.Repo.RevokeRole(ctx, tx, userID, role)
		}
		if err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: typ, EntityKind: events.KindUser, EntityID: userID, ActorID: p.UserID,
			Payload: events.Payload{"role": role},
		})
	})
}

// CreateAPIKey issues a new key for userID. The plaintext is returned once;
// only its hash is stored. Users mint their own keys, admins anyone's.
func (e Engine) CreateAPIKey(ctx context.Context, p domain.Principal, userID, name string) (string, domain.APIKey, error) {
	if userID == "" {
		userID = p.UserID
	}
	if p.UserID == "" || (userID != p.UserID && !p.HasRole(domain.RoleAdmin)) {
		return "", domain.APIKey{}, auth.PermissionDeniedError{Kind: "api_key", ID: userID}
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", domain.APIKey{}, err
	}
	plain := "tlk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", key, err
	}
	return plain, key, nil
}

type WorkspaceCreateOptions struct {
	Name        string
	Description string
}

// CreateWorkspace makes the principal the owner of a new workspace.
func (e Engine) CreateWorkspace(ctx context.Context, p domain.Principal, opts WorkspaceCreateOptions) (domain.Workspace, error) {
	ws := domain.Workspace{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(opts.Name),
		Description: opts.Description,
		OwnerID:     p.UserID,
		CreatedAt:   e.stamp(),
	}
	if p.UserID == "" {
		return ws, auth.PermissionDeniedError{Kind: auth.KindWorkspace}
	}
	if ws.Name == "" {
		return ws, invalid("name", "required")
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertWorkspace(ctx, tx, ws); err != nil {
			return fmt.Errorf("insert workspace: %w", err)
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: "workspace.created", EntityKind: events.KindWorkspace, EntityID: ws.ID, ActorID: p.UserID,
			Payload: events.Payload{"name": ws.Name},
		})
	})
	return ws, err
}

func (e Engine) GetWorkspace(ctx context.Context, p domain.Principal, id string) (domain.Workspace, error) {
	ws, err := e.Repo.GetWorkspace(ctx, id)
	if err != nil {
		return ws, err
	}
	if !e.canSeeWorkspace(ctx, p, ws) {
		return domain.Workspace{}, auth.PermissionDeniedError{Kind: auth.KindWorkspace, ID: id}
	}
	return ws, nil
}

// ListWorkspaces returns the workspaces the principal owns or contributes to.
func (e Engine) ListWorkspaces(ctx context.Context, p domain.Principal) ([]domain.Workspace, error) {
	all, err := e.Repo.ListWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Workspace
	for _, ws := range all {
		if e.canSeeWorkspace(ctx, p, ws) {
			out = append(out, ws)
		}
	}
	return out, nil
}

func (e Engine) canSeeWorkspace(ctx context.Context, p domain.Principal, ws domain.Workspace) bool {
	if e.Auth.Workspace(ctx, p, ws.ID) {
		return true
	}
	lists, err := e.Repo.ListWorkLists(ctx, ws.ID)
	if err != nil {
		return false
	}
	for _, wl := range lists {
		if e.Auth.CanContribute(ctx, p, wl.ID) {
			return true
		}
	}
	return false
}

func (e Engine) DeleteWorkspace(ctx context.Context, p domain.Principal, id string) error {
	if _, err := e.Repo.GetWorkspace(ctx, id); err != nil {
		return err
	}
	if err := e.Auth.Require(ctx, p, auth.KindWorkspace, id); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteWorkspace(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: "workspace.deleted", EntityKind: events.KindWorkspace, EntityID: id, ActorID: p.UserID,
		})
	})
}

type WorkListCreateOptions struct {
	WorkspaceID string
	Name        string
	Description string
	LeadID      string
	MemberIDs   []string
}

// CreateWorkList adds a work-list to a workspace. Workspace owners only.
func (e Engine) CreateWorkList(ctx context.Context, p domain.Principal, opts WorkListCreateOptions) (domain.WorkList, error) {
	wl := domain.WorkList{
		ID:          uuid.NewString(),
		WorkspaceID: opts.WorkspaceID,
		Name:        strings.TrimSpace(opts.Name),
		Description: opts.Description,
		LeadID:      optionalString(opts.LeadID),
		MemberIDs:   opts.MemberIDs,
		CreatedAt:   e.stamp(),
	}
	if wl.Name == "" {
		return wl, invalid("name", "required")
	}
	if _, err := e.Repo.GetWorkspace(ctx, opts.WorkspaceID); err != nil {
		return wl, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindWorkspace, opts.WorkspaceID); err != nil {
		return wl, err
	}
	for _, id := range append([]string{opts.LeadID}, opts.MemberIDs...) {
		if id == "" {
			continue
		}
		if _, err := e.Repo.GetUser(ctx, id); err != nil {
			return wl, err
		}
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertWorkList(ctx, tx, wl); err != nil {
			return fmt.Errorf("insert work list: %w", err)
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: "work_list.created", WorkListID: wl.ID, EntityKind: events.KindWorkList, EntityID: wl.ID, ActorID: p.UserID,
			Payload: events.Payload{"name": wl.Name, "workspace_id": wl.WorkspaceID},
		})
	})
	return wl, err
}

func (e Engine) GetWorkList(ctx context.Context, p domain.Principal, id string) (domain.WorkList, error) {
	wl, err := e.Repo.GetWorkList(ctx, id)
	if err != nil {
		return wl, err
	}
	if err := e.Auth.RequireContributor(ctx, p, id); err != nil {
		return domain.WorkList{}, err
	}
	return wl, nil
}

// ListWorkLists returns the work-lists of a workspace the principal contributes to.
func (e Engine) ListWorkLists(ctx context.Context, p domain.Principal, workspaceID string) ([]domain.WorkList, error) {
	all, err := e.Repo.ListWorkLists(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	var out []domain.WorkList
	for _, wl := range all {
		if e.Auth.CanContribute(ctx, p, wl.ID) {
			out = append(out, wl)
		}
	}
	return out, nil
}

type WorkListUpdate struct {
	Name        *string
	Description *string
}

func (e Engine) UpdateWorkList(ctx context.Context, p domain.Principal, id string, u WorkListUpdate) (domain.WorkList, error) {
	wl, err := e.loadWorkListForChange(ctx, p, id)
	if err != nil {
		return wl, err
	}
	if u.Name != nil {
		if strings.TrimSpace(*u.Name) == "" {
			return wl, invalid("name", "required")
		}
		wl.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		wl.Description = *u.Description
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateWorkList(ctx, tx, wl); err != nil {
			return err
		}
		return e.workListEvent(ctx, tx, "work_list.updated", wl.ID, p, nil)
	})
	return wl, err
}

// SetLead assigns or clears the work-list lead.
func (e Engine) SetLead(ctx context.Context, p domain.Principal, id, userID string) (domain.WorkList, error) {
	wl, err := e.loadWorkListForChange(ctx, p, id)
	if err != nil {
		return wl, err
	}
	if userID != "" {
		if _, err := e.Repo.GetUser(ctx, userID); err != nil {
			return wl, err
		}
	}
	wl.LeadID = optionalString(userID)
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateWorkList(ctx, tx, wl); err != nil {
			return err
		}
		return e.workListEvent(ctx, tx, "work_list.lead_changed", wl.ID, p, events.Payload{"lead_id": wl.LeadID})
	})
	return wl, err
}

func (e Engine) AddMember(ctx context.Context, p domain.Principal, id, userID string) error {
	return e.changeMember(ctx, p, id, userID, true)
}

func (e Engine) RemoveMember(ctx context.Context, p domain.Principal, id, userID string) error {
	return e.changeMember(ctx, p, id, userID, false)
}

func (e Engine) changeMember(ctx context.Context, p domain.Principal, id, userID string, add bool) error {
	if _, err := e.loadWorkListForChange(ctx, p, id); err != nil {
		return err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return err
	}
	typ := "work_list.member_added"
	if !add {
		typ = "work_list.member_removed"
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if add {
			err = e.Repo.AddWorkListMember(ctx, tx, id, userID)
		} else {
			err = e.Repo.RemoveWorkListMember(ctx, tx, id, userID)
		}
		if err != nil {
			return err
		}
		return e.workListEvent(ctx, tx, typ, id, p, events.Payload{"user_id": userID})
	})
}

func (e Engine) DeleteWorkList(ctx context.Context, p domain.Principal, id string) error {
	wl, err := e.Repo.GetWorkList(ctx, id)
	if err != nil {
		return err
	}
	// Lead rights do not extend to removing the work-list itself.
	if err := e.Auth.Require(ctx, p, auth.KindWorkspace, wl.WorkspaceID); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteWorkList(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: "work_list.deleted", EntityKind: events.KindWorkList, EntityID: id, ActorID: p.UserID,
		})
	})
}

func (e Engine) loadWorkListForChange(ctx context.Context, p domain.Principal, id string) (domain.WorkList, error) {
	wl, err := e.Repo.GetWorkList(ctx, id)
	if err != nil {
		return wl, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindWorkList, id); err != nil {
		return wl, err
	}
	return wl, nil
}

func (e Engine) workListEvent(ctx context.Context, tx *sql.Tx, typ, id string, p domain.Principal, payload events.Payload) error {
	return e.appendEvent(ctx, tx, events.Record{
		Type: typ, WorkListID: id, EntityKind: events.KindWorkList, EntityID: id, ActorID: p.UserID, Payload: payload,
	})
}

// CreateLabel adds a label to a work-list. Names are unique per work-list.
func (e Engine) CreateLabel(ctx context.Context, p domain.Principal, workListID, name, color string) (domain.Label, error) {
	l := domain.Label{ID: uuid.NewString(), WorkListID: workListID, Name: strings.TrimSpace(name), Color: strings.TrimSpace(color)}
	if l.Name == "" {
		return l, invalid("name", "required")
	}
	if _, err := e.Repo.GetWorkList(ctx, workListID); err != nil {
		return l, err
	}
	if err := e.Auth.RequireContributor(ctx, p, workListID); err != nil {
		return l, err
	}
	existing, err := e.Repo.ListLabels(ctx, workListID)
	if err != nil {
		return l, err
	}
	for _, x := range existing {
		if strings.EqualFold(x.Name, l.Name) {
			return l, invalid("name", fmt.Sprintf("label %q exists", l.Name))
		}
	}
	return l, e.Repo.InsertLabel(ctx, nil, l)
}

func (e Engine) ListLabels(ctx context.Context, p domain.Principal, workListID string) ([]domain.Label, error) {
	if _, err := e.Repo.GetWorkList(ctx, workListID); err != nil {
		return nil, err
	}
	if err := e.Auth.RequireContributor(ctx, p, workListID); err != nil {
		return nil, err
	}
	return e.Repo.ListLabels(ctx, workListID)
}
