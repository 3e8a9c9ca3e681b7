package user

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-account-go/pkg/apperror"
)

// DefaultPasswordCost is the bcrypt cost used when BcryptHasher.Cost is zero.
const DefaultPasswordCost = 12

// PasswordHasher hashes and verifies plaintext passwords. Both calls honour
// ctx so a slow hash never outlives the request.
type PasswordHasher interface {
	Hash(ctx context.Context, pw string) (string, error)
	Verify(ctx context.Context, pw, hash string) (bool, error)
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(ctx context.Context, pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = DefaultPasswordCost
	}
	h, err := runBlocking(ctx, func() ([]byte, error) {
		return bcrypt.GenerateFromPassword([]byte(pw), cost)
	})
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperror.BadRequest("password is too long")
		}
		return "", apperror.Internal("hash password", err)
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(ctx context.Context, pw, hash string) (bool, error) {
	ok, err := runBlocking(ctx, func() (bool, error) {
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return false, apperror.Internal("verify password", err)
	}
	return ok, nil
}

// runBlocking runs fn on its own goroutine and gives up when ctx is done.
// fn keeps running to completion in the background.
func runBlocking[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
