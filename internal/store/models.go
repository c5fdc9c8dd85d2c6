package store

import "errors"

// RootID is the id of the single root folder.
const RootID = "root"

var (
	ErrNotFound  = errors.New("item not found")
	ErrNotFolder = errors.New("item is not a folder")
	ErrRoot      = errors.New("root folder cannot be removed")

	ErrUserNotFound = errors.New("user not found")
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

type User struct {
	ID           string
	Name         string
	Email        string
	Avatar       string
	Role         Role
	Department   string
	PasswordHash string
}

// Access is a grant level. AccessNone is only ever a resolved value.
type Access string

const (
	AccessOwner Access = "owner"
	AccessWrite Access = "write"
	AccessRead  Access = "read"
	AccessNone  Access = "none"
)

// Permissions maps user ids to their grant.
type Permissions map[string]Access

// DepartmentPermissions maps department labels to a write or read grant.
type DepartmentPermissions map[string]Access

func (p Permissions) Clone() Permissions {
	if p == nil {
		return nil
	}
	out := make(Permissions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p DepartmentPermissions) Clone() DepartmentPermissions {
	if p == nil {
		return nil
	}
	out := make(DepartmentPermissions, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

type ItemType string

const (
	TypeFolder ItemType = "folder"
	TypePDF    ItemType = "pdf"
	TypeImage  ItemType = "image"
	TypeDoc    ItemType = "doc"
	TypeExcel  ItemType = "excel"
)

// Item is a node of the file tree: a folder when Type is TypeFolder,
// otherwise a document. Items reachable from a published snapshot must
// not be modified.
type Item struct {
	ID                    string                `yaml:"id"`
	Name                  string                `yaml:"name"`
	Type                  ItemType              `yaml:"type"`
	Modified              string                `yaml:"modified"`
	Size                  string                `yaml:"size"`
	OwnerID               string                `yaml:"ownerId"`
	Permissions           Permissions           `yaml:"permissions"`
	DepartmentPermissions DepartmentPermissions `yaml:"departmentPermissions,omitempty"`

	// Document fields.
	Content string `yaml:"content,omitempty"`
	URL     string `yaml:"url,omitempty"`

	// Folder fields, newest first.
	Children []*Item `yaml:"children,omitempty"`
}

func (i *Item) IsFolder() bool {
	return i != nil && i.Type == TypeFolder
}

// clone copies the node itself. Children and permission maps stay shared.
func (i *Item) clone() *Item {
	c := *i
	return &c
}

// ItemPatch is a shallow update. Nil fields are left untouched.
type ItemPatch struct {
	Name                  *string
	Modified              *string
	Size                  *string
	Content               *string
	URL                   *string
	OwnerID               *string
	Permissions           Permissions
	DepartmentPermissions DepartmentPermissions
}

func (p ItemPatch) IsEmpty() bool {
	return p.Name == nil && p.Modified == nil && p.Size == nil && p.Content == nil &&
		p.URL == nil && p.OwnerID == nil && p.Permissions == nil && p.DepartmentPermissions == nil
}

func (p ItemPatch) apply(item *Item) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Modified != nil {
		item.Modified = *p.Modified
	}
	if p.Size != nil {
		item.Size = *p.Size
	}
	if p.Content != nil {
		item.Content = *p.Content
	}
	if p.URL != nil {
		item.URL = *p.URL
	}
	if p.OwnerID != nil {
		item.OwnerID = *p.OwnerID
	}
	if p.Permissions != nil {
		item.Permissions = p.Permissions.Clone()
	}
	if p.DepartmentPermissions != nil {
		item.DepartmentPermissions = p.DepartmentPermissions.Clone()
	}
}

// UserPatch is a shallow update of a registry entry.
type UserPatch struct {
	Name         *string
	Email        *string
	Role         *Role
	Department   *string
	PasswordHash *string
}

func (p UserPatch) apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
}

// NewUser holds the caller-supplied fields of a registry entry.
type NewUser struct {
	Name       string
	Email      string
	Role       Role
	Department string
}
