// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import "context"

// Transactor runs fn inside one atomic unit of work. Repository calls made
// with the context passed to fn join the transaction. If fn returns an error,
// or ctx is cancelled before commit, nothing fn wrote survives.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
