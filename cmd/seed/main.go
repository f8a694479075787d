package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"venue-membership/internal/config"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/repository"
	"venue-membership/internal/infra/api"
	pg "venue-membership/internal/infra/db/postgres"

	"github.com/jackc/pgx/v4"
)

// Seeds a few demo members with recent visits so subscribe and the renewal
// sweep can be exercised locally.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	members := pg.NewMemberRepo(pool)
	visits := pg.NewVisitationRepo(pool)
	tm := pg.NewTxManager(pool)
	auth := api.NewAuthManager(cfg.HTTP.JWTSecret, cfg.HTTP.JWTIssuer)

	seed := []struct {
		Username string
		Active   bool
		Visits   int
	}{
		{"regular", true, 5},
		{"idle", true, 0},
		{"suspended", false, 1},
	}

	now := time.Now().In(cfg.Location())
	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, s := range seed {
			m := &model.Member{Username: s.Username, IsActive: s.Active}
			if err := members.Insert(ctx, tx, m); err != nil {
				return fmt.Errorf("insert member %q: %w", s.Username, err)
			}
			for i := 0; i < s.Visits; i++ {
				v := &model.Visitation{MemberID: m.ID, PartnerID: int64(i%3 + 1), CreatedAt: now.AddDate(0, 0, -i)}
				if err := visits.Insert(ctx, tx, v); err != nil {
					return fmt.Errorf("insert visit for %q: %w", s.Username, err)
				}
			}
			tok, err := auth.Issue(m.ID, 24*time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf("seeded: %s (id=%d, active=%t, visits=%d)\n  token: %s\n", m.Username, m.ID, m.IsActive, s.Visits, tok)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Println("Seeding complete.")
}
