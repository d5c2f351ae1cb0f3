// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/modelstore/modelstore/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(migrator.Close()).To(Succeed()) })
		Expect(migrator.Down()).To(Succeed())
	})

	It("starts at version zero with everything pending", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(BeZero())
		Expect(status.Dirty).To(BeFalse())
		Expect(status.Pending).To(Equal([]uint{1, 2}))
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(2)))
		Expect(status.Name).To(Equal("000002_refresh_tokens"))
		Expect(status.Pending).To(BeEmpty())
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint(1)))

		Expect(migrator.Steps(1)).To(Succeed())
		v, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint(2)))
	})

	It("rolls everything back and reapplies", func() {
		Expect(migrator.Down()).To(Succeed())
		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeZero())
		Expect(migrator.Up()).To(Succeed())
	})
})

var _ = Describe("Schema", Ordered, func() {
	var pool *pgxpool.Pool
	ctx := context.Background()

	BeforeAll(func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Close()).To(Succeed())

		pool, err = store.OpenPool(ctx, connStr,
			store.PoolConfig{MaxConns: 4, PingAttempts: 3, PingBackoff: 100 * time.Millisecond},
			slog.New(slog.NewTextHandler(io.Discard, nil)))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)
	})

	insertUser := func(id, normalized string) error {
		_, err := pool.Exec(ctx, `
			INSERT INTO users (id, email, normalized_email, password_hash, created_at)
			VALUES ($1, $2, $3, 'h', NOW())
		`, id, normalized, normalized)
		return err
	}

	It("rejects a second user with the same normalized email", func() {
		Expect(insertUser("01SCHEMAUSER0000000000001", "DUP@EXAMPLE.COM")).To(Succeed())
		err := insertUser("01SCHEMAUSER0000000000002", "DUP@EXAMPLE.COM")

		var pgErr *pgconn.PgError
		Expect(errors.As(err, &pgErr)).To(BeTrue())
		Expect(pgErr.Code).To(Equal(pgerrcode.UniqueViolation))
	})

	It("cascades session removal with the user", func() {
		Expect(insertUser("01SCHEMAUSER0000000000003", "CASCADE@EXAMPLE.COM")).To(Succeed())
		_, err := pool.Exec(ctx, `
			INSERT INTO refresh_tokens (id, user_id, token_hash, created_at, expires_at)
			VALUES ('01SCHEMATOKEN000000000001', '01SCHEMAUSER0000000000003', 'hash-cascade', NOW(), NOW() + INTERVAL '1 day')
		`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx, `DELETE FROM users WHERE id = '01SCHEMAUSER0000000000003'`)
		Expect(err).NotTo(HaveOccurred())

		var n int
		Expect(pool.QueryRow(ctx, `SELECT COUNT(*) FROM refresh_tokens WHERE token_hash = 'hash-cascade'`).Scan(&n)).To(Succeed())
		Expect(n).To(BeZero())
	})
})
