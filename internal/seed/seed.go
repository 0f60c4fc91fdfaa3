package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"useraccounts/internal/auth"
	"useraccounts/internal/logging"
	"useraccounts/internal/model"
	"useraccounts/internal/repository"
)

// Record is one account in the seed document.
type Record struct {
	ID       string `json:"id" validate:"omitempty,uuid"`
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"omitempty,min=6,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

// Hasher hashes seed passwords.
type Hasher interface {
	Hash(plaintext string) (string, error)
}

// Result counts what Apply did.
type Result struct {
	Created int
	Updated int
	Skipped int
}

// Fetch downloads the seed document from url.
func Fetch(ctx context.Context, client *http.Client, url string) ([]Record, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch seed accounts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seed source returned status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parse seed accounts: %w", err)
	}
	return records, nil
}

// Apply upserts records keyed by email. Invalid records are skipped and
// logged. A record without a password keeps the stored one, or gets a random
// one when the account is new.
func Apply(ctx context.Context, repo repository.AccountRepository, hasher Hasher, records []Record, logger logging.Logger, now time.Time) (Result, error) {
	var res Result
	validate := validator.New()

	for _, rec := range records {
		rec.Name = strings.TrimSpace(rec.Name)
		rec.Email = strings.ToLower(strings.TrimSpace(rec.Email))
		err := validate.Struct(rec)
		if err == nil && len(rec.Password) > auth.MaxPasswordBytes {
			err = auth.ErrPasswordTooLong
		}
		if err != nil {
			logger.Warn(ctx, "skipping invalid seed account", "email", rec.Email, "error", err)
			res.Skipped++
			continue
		}

		role := model.Role(rec.Role)
		if role == "" {
			role = model.RoleUser
		}

		existing, err := repo.FindByEmail(ctx, rec.Email)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return res, fmt.Errorf("check account %s: %w", rec.Email, err)
		}

		if existing != nil {
			columns := []string{"name", "role", "updated_at"}
			existing.Name = rec.Name
			existing.Role = role
			existing.UpdatedAt = now
			if rec.Password != "" {
				hash, err := hasher.Hash(rec.Password)
				if err != nil {
					return res, fmt.Errorf("hash password for %s: %w", rec.Email, err)
				}
				existing.PasswordHash = hash
				columns = append(columns, "password_hash")
			}
			if err := repo.Update(ctx, existing, columns...); err != nil {
				return res, fmt.Errorf("update account %s: %w", rec.Email, err)
			}
			res.Updated++
			continue
		}

		password := rec.Password
		if password == "" {
			password = uuid.NewString()
		}
		hash, err := hasher.Hash(password)
		if err != nil {
			return res, fmt.Errorf("hash password for %s: %w", rec.Email, err)
		}

		account := &model.Account{
			Name:         rec.Name,
			Email:        rec.Email,
			PasswordHash: hash,
			Role:         role,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if rec.ID != "" {
			account.ID = uuid.MustParse(rec.ID)
		}
		if err := repo.Create(ctx, account); err != nil {
			return res, fmt.Errorf("create account %s: %w", rec.Email, err)
		}
		res.Created++
	}

	return res, nil
}
