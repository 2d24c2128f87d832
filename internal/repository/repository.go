/**
 * @description
 * Shared repository plumbing: the domain not-found sentinel and GORM error mapping.
 *
 * Conventions:
 * - Entity lookups (by code) return ErrNotFound when no row matches.
 * - Observation point queries (latest / latest-before) return (nil, nil) when the
 *   series is empty: an absent observation is a value, not an error.
 */

package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a referenced entity code has no matching row.
var ErrNotFound = errors.New("not found")

// one maps a First() result to the optional-observation convention.
func one[T any](out *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// entity maps a First() result to the entity-lookup convention.
func entity[T any](out *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return out, nil
}
