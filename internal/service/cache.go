package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/templui/piggybank/internal/refresh"
)

// Page is one page of a list view.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// cached serves key from the view cache or loads and stores it. Cache failures
// only cost a reload.
func cached[T any](ctx context.Context, cache refresh.Cache, key string, load func() (T, error)) (T, error) {
	if cache != nil {
		raw, ok, err := cache.Get(ctx, key)
		if err != nil {
			slog.Warn("view cache read failed", "error", err, "key", key)
		}
		if ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}

	if cache != nil {
		raw, err := json.Marshal(v)
		if err == nil {
			err = cache.Set(ctx, key, raw)
		}
		if err != nil {
			slog.Warn("view cache write failed", "error", err, "key", key)
		}
	}
	return v, nil
}
