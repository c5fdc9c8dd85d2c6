package store

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

type seedUser struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	Avatar     string `yaml:"avatar"`
	Role       Role   `yaml:"role"`
	Department string `yaml:"department"`
	Password   string `yaml:"password"`
}

type seedFile struct {
	Users []seedUser `yaml:"users"`
	Tree  *Item      `yaml:"tree"`
}

// Seed is the built-in dataset every process starts from.
type Seed struct {
	Root  *Item
	Users []User
}

// LoadSeed decodes the embedded dataset, hashing each seeded password.
func LoadSeed(hash PasswordHasher) (Seed, error) {
	return ParseSeed(seedYAML, hash)
}

func ParseSeed(data []byte, hash PasswordHasher) (Seed, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	if file.Tree == nil || file.Tree.ID != RootID || !file.Tree.IsFolder() {
		return Seed{}, fmt.Errorf("seed tree must be a folder with id %q", RootID)
	}

	users := make([]User, 0, len(file.Users))
	for _, su := range file.Users {
		password := su.Password
		if password == "" {
			password = DefaultPassword
		}
		hashed := password
		if hash != nil {
			h, err := hash(password)
			if err != nil {
				return Seed{}, fmt.Errorf("hash password for %s: %w", su.ID, err)
			}
			hashed = h
		}
		avatar := su.Avatar
		if avatar == "" {
			avatar = DefaultAvatar
		}
		users = append(users, User{
			ID:           su.ID,
			Name:         su.Name,
			Email:        su.Email,
			Avatar:       avatar,
			Role:         su.Role,
			Department:   su.Department,
			PasswordHash: hashed,
		})
	}
	return Seed{Root: file.Tree, Users: users}, nil
}
