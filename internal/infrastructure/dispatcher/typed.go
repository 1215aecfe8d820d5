package dispatcher

import (
	"context"
	"net/http"
)

func GetJSON[T any](ctx context.Context, d *Dispatcher, path string, opts ...CallOption) (T, error) {
	var out T
	err := d.Do(ctx, http.MethodGet, path, nil, &out, opts...)
	return out, err
}

func PostJSON[T any](ctx context.Context, d *Dispatcher, path string, body any, opts ...CallOption) (T, error) {
	var out T
	err := d.Do(ctx, http.MethodPost, path, body, &out, opts...)
	return out, err
}

func PutJSON[T any](ctx context.Context, d *Dispatcher, path string, body any, opts ...CallOption) (T, error) {
	var out T
	err := d.Do(ctx, http.MethodPut, path, body, &out, opts...)
	return out, err
}

func PatchJSON[T any](ctx context.Context, d *Dispatcher, path string, body any, opts ...CallOption) (T, error) {
	var out T
	err := d.Do(ctx, http.MethodPatch, path, body, &out, opts...)
	return out, err
}
